package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/codedays/core/site"
	"github.com/trezcool/codedays/core/user"
	"github.com/trezcool/codedays/storage/database"
)

type siteRepository struct {
	db *sqlx.DB
}

var _ site.Repository = (*siteRepository)(nil) // interface compliance check

func NewSiteRepository(db *sqlx.DB) site.Repository {
	return &siteRepository{db: db}
}

// ResetApp deletes children before parents so that foreign keys hold at every step.
func (repo *siteRepository) ResetApp(ctx context.Context) (site.ResetCounts, error) {
	var counts site.ResetCounts
	steps := []struct {
		query string
		args  []interface{}
		count *int64
	}{
		{query: "DELETE FROM submissions", count: &counts.Submissions},
		{query: "DELETE FROM assignments", count: &counts.Assignments},
		{query: "DELETE FROM notes", count: &counts.Notes},
		{query: "DELETE FROM programs", count: &counts.Programs},
		{query: "DELETE FROM lessons", count: &counts.Lessons},
		{query: "DELETE FROM days", count: &counts.Days},
		{query: "DELETE FROM users WHERE role <> $1", args: []interface{}{user.RoleAdmin}, count: &counts.Users},
	}

	err := database.InTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		for _, step := range steps {
			res, err := tx.ExecContext(ctx, step.query, step.args...)
			if err != nil {
				return errors.Wrap(err, step.query)
			}
			if *step.count, err = res.RowsAffected(); err != nil {
				return errors.Wrap(err, step.query)
			}
		}
		return nil
	})
	if err != nil {
		return site.ResetCounts{}, err
	}
	return counts, nil
}
