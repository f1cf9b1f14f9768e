package inmemdb

import (
	"context"

	"github.com/trezcool/codedays/core/content"
	"github.com/trezcool/codedays/core/coursework"
	"github.com/trezcool/codedays/core/site"
	"github.com/trezcool/codedays/core/user"
)

type siteRepository struct {
	db *DB
}

var _ site.Repository = (*siteRepository)(nil)

func NewSiteRepository(db *DB) site.Repository {
	return &siteRepository{db: db}
}

func (repo *siteRepository) ResetApp(_ context.Context) (site.ResetCounts, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	counts := site.ResetCounts{
		Submissions: int64(len(repo.db.submissions)),
		Assignments: int64(len(repo.db.assignments)),
		Notes:       int64(len(repo.db.notes)),
		Programs:    int64(len(repo.db.programs)),
		Lessons:     int64(len(repo.db.lessons)),
		Days:        int64(len(repo.db.days)),
	}
	repo.db.submissions = make(map[int]coursework.Submission)
	repo.db.assignments = make(map[int]coursework.Assignment)
	repo.db.notes = make(map[int]content.Note)
	repo.db.programs = make(map[int]content.Program)
	repo.db.lessons = make(map[int]content.Lesson)
	repo.db.days = make(map[int]content.Day)

	for id, usr := range repo.db.users {
		if usr.Role != user.RoleAdmin {
			delete(repo.db.users, id)
			counts.Users++
		}
	}
	return counts, nil
}
