package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/codedays/core"
	"github.com/trezcool/codedays/core/coursework"
)

type courseworkRepository struct {
	db *DB
}

var _ coursework.Repository = (*courseworkRepository)(nil)

func NewCourseworkRepository(db *DB) coursework.Repository {
	return &courseworkRepository{db: db}
}

func (repo *courseworkRepository) CreateAssignment(_ context.Context, a coursework.Assignment) (coursework.Assignment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	a.ID = repo.db.nextPK("assignments")
	repo.db.assignments[a.ID] = a
	return a, nil
}

func (repo *courseworkRepository) QueryAssignments(_ context.Context) ([]coursework.Assignment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	ids := sortedKeys(repo.db.assignments)
	assignments := make([]coursework.Assignment, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		assignments = append(assignments, repo.db.assignments[ids[i]])
	}
	return assignments, nil
}

func (repo *courseworkRepository) GetAssignment(_ context.Context, id int) (coursework.Assignment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if a, ok := repo.db.assignments[id]; ok {
		return a, nil
	}
	return coursework.Assignment{}, coursework.ErrNotFound
}

// findSubmission must be called with the lock held.
func (repo *courseworkRepository) findSubmission(userID, assignmentID int) (coursework.Submission, bool) {
	for _, sub := range repo.db.submissions {
		if sub.UserID == userID && sub.AssignmentID == assignmentID {
			return sub, true
		}
	}
	return coursework.Submission{}, false
}

func (repo *courseworkRepository) UpsertSubmission(_ context.Context, sub coursework.Submission) (coursework.Submission, bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.users[sub.UserID]; !ok {
		return coursework.Submission{}, false, errors.Wrap(errForeignKey, "submissions.user_id")
	}
	if _, ok := repo.db.assignments[sub.AssignmentID]; !ok {
		return coursework.Submission{}, false, errors.Wrap(errForeignKey, "submissions.assignment_id")
	}

	if existing, ok := repo.findSubmission(sub.UserID, sub.AssignmentID); ok {
		existing.CodeText = sub.CodeText
		existing.SubmittedAt = sub.SubmittedAt.UTC()
		repo.db.submissions[existing.ID] = existing
		return copySubmission(existing), false, nil
	}

	sub.ID = repo.db.nextPK("submissions")
	sub.SubmittedAt = sub.SubmittedAt.UTC()
	sub.Score = nil
	sub.Feedback = ""
	repo.db.submissions[sub.ID] = sub
	return copySubmission(sub), true, nil
}

func (repo *courseworkRepository) GetUserSubmission(_ context.Context, userID, assignmentID int) (coursework.Submission, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if sub, ok := repo.findSubmission(userID, assignmentID); ok {
		return copySubmission(sub), nil
	}
	return coursework.Submission{}, coursework.ErrNotFound
}

// detail joins a submission with its author and assignment. Callers hold the lock.
func (repo *courseworkRepository) detail(sub coursework.Submission) coursework.SubmissionDetail {
	a := repo.db.assignments[sub.AssignmentID]
	return coursework.SubmissionDetail{
		Submission:      copySubmission(sub),
		Username:        repo.db.users[sub.UserID].Username,
		AssignmentTitle: a.Title,
		MaxScore:        a.MaxScore,
	}
}

func (repo *courseworkRepository) GetSubmission(_ context.Context, id int) (coursework.SubmissionDetail, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	sub, ok := repo.db.submissions[id]
	if !ok {
		return coursework.SubmissionDetail{}, coursework.ErrNotFound
	}
	return repo.detail(sub), nil
}

func (repo *courseworkRepository) QuerySubmissions(
	_ context.Context,
	filter coursework.SubmissionFilter,
	orderings ...core.DBOrdering,
) ([]coursework.SubmissionDetail, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	subs := make([]coursework.SubmissionDetail, 0)
	for _, id := range sortedKeys(repo.db.submissions) {
		sub := repo.db.submissions[id]
		if filter.UserID != 0 && sub.UserID != filter.UserID {
			continue
		}
		if !filter.Since.IsZero() && sub.SubmittedAt.Before(filter.Since) {
			continue
		}
		subs = append(subs, repo.detail(sub))
	}

	sort.SliceStable(subs, func(i, j int) bool {
		for _, ord := range orderings {
			var c int
			switch ord.Field {
			case "id":
				c = subs[i].ID - subs[j].ID
			case "submitted_at":
				c = subs[i].SubmittedAt.Compare(subs[j].SubmittedAt)
			}
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
	return subs, nil
}

func (repo *courseworkRepository) ReviewSubmission(_ context.Context, id, score int, feedback string) (coursework.SubmissionDetail, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	sub, ok := repo.db.submissions[id]
	if !ok {
		return coursework.SubmissionDetail{}, coursework.ErrNotFound
	}
	usr, ok := repo.db.users[sub.UserID]
	if !ok {
		return coursework.SubmissionDetail{}, errors.Errorf("updating total score of user %d: user not found", sub.UserID)
	}

	var prev int
	if sub.Score != nil {
		prev = *sub.Score
	}
	usr.TotalScore += score - prev
	repo.db.users[usr.ID] = usr

	sub.Score = &score
	sub.Feedback = feedback
	repo.db.submissions[id] = sub
	return repo.detail(sub), nil
}

// copySubmission detaches the score pointer from the stored row.
func copySubmission(sub coursework.Submission) coursework.Submission {
	if sub.Score != nil {
		score := *sub.Score
		sub.Score = &score
	}
	return sub
}
