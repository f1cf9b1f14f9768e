package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/codedays/core"
	"github.com/trezcool/codedays/core/coursework"
	"github.com/trezcool/codedays/storage/database"
)

const submissionDetailQuery = `
	SELECT s.id, s.user_id, s.assignment_id, s.code_text, s.score, s.feedback, s.submitted_at,
		u.username, a.title AS assignment_title, a.max_score
	FROM submissions s
	JOIN users u ON u.id = s.user_id
	JOIN assignments a ON a.id = s.assignment_id`

var submissionOrderings = map[string]string{
	"id":           "s.id",
	"submitted_at": "s.submitted_at",
}

type (
	assignmentRow struct {
		ID          int       `db:"id"`
		Title       string    `db:"title"`
		Description string    `db:"description"`
		MaxScore    int       `db:"max_score"`
		CreatedAt   time.Time `db:"created_at"`
	}

	submissionRow struct {
		ID           int         `db:"id"`
		UserID       int         `db:"user_id"`
		AssignmentID int         `db:"assignment_id"`
		CodeText     string      `db:"code_text"`
		Score        null.Int    `db:"score"`
		Feedback     null.String `db:"feedback"`
		SubmittedAt  time.Time   `db:"submitted_at"`
	}

	submissionDetailRow struct {
		submissionRow
		Username        string `db:"username"`
		AssignmentTitle string `db:"assignment_title"`
		MaxScore        int    `db:"max_score"`
	}
)

func (r assignmentRow) toAssignment() coursework.Assignment {
	return coursework.Assignment{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		MaxScore:    r.MaxScore,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

func (r submissionRow) toSubmission() coursework.Submission {
	return coursework.Submission{
		ID:           r.ID,
		UserID:       r.UserID,
		AssignmentID: r.AssignmentID,
		CodeText:     r.CodeText,
		Score:        r.Score.Ptr(),
		Feedback:     r.Feedback.String,
		SubmittedAt:  r.SubmittedAt.UTC(),
	}
}

func (r submissionDetailRow) toDetail() coursework.SubmissionDetail {
	return coursework.SubmissionDetail{
		Submission:      r.submissionRow.toSubmission(),
		Username:        r.Username,
		AssignmentTitle: r.AssignmentTitle,
		MaxScore:        r.MaxScore,
	}
}

type courseworkRepository struct {
	db *sqlx.DB
}

var _ coursework.Repository = (*courseworkRepository)(nil) // interface compliance check

func NewCourseworkRepository(db *sqlx.DB) coursework.Repository {
	return &courseworkRepository{db: db}
}

func (repo *courseworkRepository) CreateAssignment(ctx context.Context, a coursework.Assignment) (coursework.Assignment, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	var row assignmentRow
	err := namedGet(ctx, repo.db, &row, `
		INSERT INTO assignments (title, description, max_score, created_at)
		VALUES (:title, :description, :max_score, :created_at)
		RETURNING id, title, description, max_score, created_at`,
		assignmentRow{Title: a.Title, Description: a.Description, MaxScore: a.MaxScore, CreatedAt: a.CreatedAt.UTC()})
	if err != nil {
		return coursework.Assignment{}, errors.Wrap(err, "inserting assignment")
	}
	return row.toAssignment(), nil
}

func (repo *courseworkRepository) QueryAssignments(ctx context.Context) ([]coursework.Assignment, error) {
	var rows []assignmentRow
	err := repo.db.SelectContext(ctx, &rows, "SELECT id, title, description, max_score, created_at FROM assignments ORDER BY id DESC")
	if err != nil {
		return nil, errors.Wrap(err, "querying assignments")
	}
	assignments := make([]coursework.Assignment, 0, len(rows))
	for _, r := range rows {
		assignments = append(assignments, r.toAssignment())
	}
	return assignments, nil
}

func (repo *courseworkRepository) GetAssignment(ctx context.Context, id int) (coursework.Assignment, error) {
	var row assignmentRow
	err := repo.db.GetContext(ctx, &row, "SELECT id, title, description, max_score, created_at FROM assignments WHERE id = $1", id)
	if err != nil {
		return coursework.Assignment{}, trapNoRowsErr(err, coursework.ErrNotFound, "finding assignment")
	}
	return row.toAssignment(), nil
}

func (repo *courseworkRepository) UpsertSubmission(ctx context.Context, sub coursework.Submission) (coursework.Submission, bool, error) {
	var row struct {
		submissionRow
		Created bool `db:"created"`
	}
	err := repo.db.GetContext(ctx, &row, `
		INSERT INTO submissions (user_id, assignment_id, code_text, submitted_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, assignment_id)
		DO UPDATE SET code_text = EXCLUDED.code_text, submitted_at = EXCLUDED.submitted_at
		RETURNING id, user_id, assignment_id, code_text, score, feedback, submitted_at, (xmax = 0) AS created`,
		sub.UserID, sub.AssignmentID, sub.CodeText, sub.SubmittedAt.UTC())
	if err != nil {
		return coursework.Submission{}, false, errors.Wrap(err, "upserting submission")
	}
	return row.toSubmission(), row.Created, nil
}

func (repo *courseworkRepository) GetUserSubmission(ctx context.Context, userID, assignmentID int) (coursework.Submission, error) {
	var row submissionRow
	err := repo.db.GetContext(ctx, &row, `
		SELECT id, user_id, assignment_id, code_text, score, feedback, submitted_at
		FROM submissions WHERE user_id = $1 AND assignment_id = $2`, userID, assignmentID)
	if err != nil {
		return coursework.Submission{}, trapNoRowsErr(err, coursework.ErrNotFound, "finding user submission")
	}
	return row.toSubmission(), nil
}

func (repo *courseworkRepository) getSubmission(ctx context.Context, q sqlx.QueryerContext, id int) (coursework.SubmissionDetail, error) {
	var row submissionDetailRow
	if err := sqlx.GetContext(ctx, q, &row, submissionDetailQuery+" WHERE s.id = $1", id); err != nil {
		return coursework.SubmissionDetail{}, trapNoRowsErr(err, coursework.ErrNotFound, "finding submission")
	}
	return row.toDetail(), nil
}

func (repo *courseworkRepository) GetSubmission(ctx context.Context, id int) (coursework.SubmissionDetail, error) {
	return repo.getSubmission(ctx, repo.db, id)
}

func (repo *courseworkRepository) QuerySubmissions(
	ctx context.Context,
	filter coursework.SubmissionFilter,
	orderings ...core.DBOrdering,
) ([]coursework.SubmissionDetail, error) {
	query := submissionDetailQuery + " WHERE true"
	var args []interface{}
	if filter.UserID != 0 {
		query += " AND s.user_id = ?"
		args = append(args, filter.UserID)
	}
	if !filter.Since.IsZero() {
		query += " AND s.submitted_at >= ?"
		args = append(args, filter.Since.UTC())
	}
	query += orderBy(submissionOrderings, orderings)

	var rows []submissionDetailRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	subs := make([]coursework.SubmissionDetail, 0, len(rows))
	for _, r := range rows {
		subs = append(subs, r.toDetail())
	}
	return subs, nil
}

// ReviewSubmission locks the submission row so concurrent reviews apply their deltas one after the other.
func (repo *courseworkRepository) ReviewSubmission(ctx context.Context, id, score int, feedback string) (coursework.SubmissionDetail, error) {
	var detail coursework.SubmissionDetail
	err := database.InTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var cur struct {
			UserID int      `db:"user_id"`
			Score  null.Int `db:"score"`
		}
		err := tx.GetContext(ctx, &cur, "SELECT user_id, score FROM submissions WHERE id = $1 FOR UPDATE", id)
		if err != nil {
			return trapNoRowsErr(err, coursework.ErrNotFound, "locking submission")
		}

		delta := score - cur.Score.Int // Int is 0 when NULL
		if _, err = tx.ExecContext(ctx,
			"UPDATE submissions SET score = $1, feedback = $2 WHERE id = $3",
			score, null.NewString(feedback, feedback != ""), id,
		); err != nil {
			return errors.Wrap(err, "updating submission")
		}

		res, err := tx.ExecContext(ctx, "UPDATE users SET total_score = total_score + $1 WHERE id = $2", delta, cur.UserID)
		if err != nil {
			return errors.Wrap(err, "updating total score")
		}
		if n, err := res.RowsAffected(); err != nil || n != 1 {
			return errors.Wrapf(sql.ErrNoRows, "updating total score of user %d", cur.UserID)
		}

		detail, err = repo.getSubmission(ctx, tx, id)
		return err
	})
	if err != nil {
		return coursework.SubmissionDetail{}, err
	}
	return detail, nil
}
