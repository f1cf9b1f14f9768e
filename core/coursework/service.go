package coursework

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/codedays/core"
)

var (
	// errors
	ErrNotFound        = errors.New("not found")
	ErrScoreOutOfRange = errors.New("score out of range")

	// ProgressWindow is how far back Progress looks.
	ProgressWindow = 30 * 24 * time.Hour

	nowFunc = time.Now // mockable
)

type (
	// SubmissionFilter narrows down QuerySubmissions. Zero values do not filter.
	SubmissionFilter struct {
		UserID int
		Since  time.Time
	}

	Repository interface {
		CreateAssignment(ctx context.Context, a Assignment) (Assignment, error)
		// QueryAssignments returns the newest assignments first.
		QueryAssignments(ctx context.Context) ([]Assignment, error)
		GetAssignment(ctx context.Context, id int) (Assignment, error)
		// UpsertSubmission inserts sub or, when the user already submitted for the assignment,
		// overwrites its code and submission time. created reports an insert.
		UpsertSubmission(ctx context.Context, sub Submission) (saved Submission, created bool, err error)
		GetUserSubmission(ctx context.Context, userID, assignmentID int) (Submission, error)
		GetSubmission(ctx context.Context, id int) (SubmissionDetail, error)
		QuerySubmissions(ctx context.Context, filter SubmissionFilter, orderings ...core.DBOrdering) ([]SubmissionDetail, error)
		// ReviewSubmission sets score and feedback, and adds score minus the previous score (0 if none)
		// to the author's total score. Both writes happen atomically or not at all.
		ReviewSubmission(ctx context.Context, id, score int, feedback string) (SubmissionDetail, error)
	}

	Service interface {
		CreateAssignment(ctx context.Context, na NewAssignment) (Assignment, error)
		QueryAssignments(ctx context.Context) ([]Assignment, error)
		GetAssignment(ctx context.Context, id int) (Assignment, error)
		Submit(ctx context.Context, userID, assignmentID int, ns NewSubmission) (Submission, bool, error)
		GetUserSubmission(ctx context.Context, userID, assignmentID int) (Submission, error)
		GetSubmission(ctx context.Context, id int) (SubmissionDetail, error)
		QuerySubmissions(ctx context.Context) ([]SubmissionDetail, error)
		Review(ctx context.Context, id int, r Review) (SubmissionDetail, error)
		Progress(ctx context.Context, userID int) (Progress, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) CreateAssignment(ctx context.Context, na NewAssignment) (Assignment, error) {
	return svc.repo.CreateAssignment(ctx, Assignment{
		Title:       na.Title,
		Description: na.Description,
		MaxScore:    na.MaxScore,
		CreatedAt:   time.Now().UTC(),
	})
}

func (svc *service) QueryAssignments(ctx context.Context) ([]Assignment, error) {
	return svc.repo.QueryAssignments(ctx)
}

func (svc *service) GetAssignment(ctx context.Context, id int) (Assignment, error) {
	return svc.repo.GetAssignment(ctx, id)
}

// Submit records the code of userID for an assignment. A second submission replaces the first.
func (svc *service) Submit(ctx context.Context, userID, assignmentID int, ns NewSubmission) (Submission, bool, error) {
	if _, err := svc.repo.GetAssignment(ctx, assignmentID); err != nil {
		return Submission{}, false, err
	}
	return svc.repo.UpsertSubmission(ctx, Submission{
		UserID:       userID,
		AssignmentID: assignmentID,
		CodeText:     ns.CodeText,
		SubmittedAt:  nowFunc().UTC(),
	})
}

func (svc *service) GetUserSubmission(ctx context.Context, userID, assignmentID int) (Submission, error) {
	return svc.repo.GetUserSubmission(ctx, userID, assignmentID)
}

func (svc *service) GetSubmission(ctx context.Context, id int) (SubmissionDetail, error) {
	return svc.repo.GetSubmission(ctx, id)
}

func (svc *service) QuerySubmissions(ctx context.Context) ([]SubmissionDetail, error) {
	return svc.repo.QuerySubmissions(ctx, SubmissionFilter{}, core.DBOrdering{Field: "submitted_at", Ascending: false})
}

// Review grades a submission; the score must lie within [0, max score].
func (svc *service) Review(ctx context.Context, id int, r Review) (SubmissionDetail, error) {
	sub, err := svc.repo.GetSubmission(ctx, id)
	if err != nil {
		return SubmissionDetail{}, err
	}

	score, err := strconv.Atoi(r.Score)
	if err != nil || score < 0 || score > sub.MaxScore {
		msg := fmt.Sprintf("score must be between 0 and %d", sub.MaxScore)
		return SubmissionDetail{}, core.NewValidationError(ErrScoreOutOfRange, core.FieldError{Field: "score", Error: msg})
	}

	sub, err = svc.repo.ReviewSubmission(ctx, id, score, r.Feedback)
	if err != nil {
		return SubmissionDetail{}, errors.Wrap(err, "reviewing submission")
	}
	return sub, nil
}

// Progress lists the submissions of userID over the last ProgressWindow, oldest first,
// with one chart point per reviewed submission.
func (svc *service) Progress(ctx context.Context, userID int) (Progress, error) {
	subs, err := svc.repo.QuerySubmissions(
		ctx,
		SubmissionFilter{UserID: userID, Since: nowFunc().UTC().Add(-ProgressWindow)},
		core.DBOrdering{Field: "submitted_at", Ascending: true},
	)
	if err != nil {
		return Progress{}, errors.Wrap(err, "querying submissions")
	}

	chart := make([]ScorePoint, 0, len(subs))
	for _, sub := range subs {
		if pct, ok := sub.Percentage(); ok {
			chart = append(chart, ScorePoint{Date: sub.SubmittedAt.UTC().Format(ChartDateLayout), Percentage: pct})
		}
	}
	return Progress{Submissions: subs, Chart: chart}, nil
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
