// Package site holds whole-site maintenance operations.
package site

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/codedays/core"
)

type (
	// ResetCounts is the number of rows deleted per table.
	ResetCounts struct {
		Submissions int64
		Assignments int64
		Notes       int64
		Programs    int64
		Lessons     int64
		Days        int64
		Users       int64
	}

	Repository interface {
		// ResetApp deletes all course content and every non-admin user, atomically.
		ResetApp(ctx context.Context) (ResetCounts, error)
	}

	Service interface {
		Reset(ctx context.Context) (ResetCounts, error)
	}

	service struct {
		repo   Repository
		logger core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, logger core.Logger) Service {
	return &service{repo: repo, logger: logger}
}

func (c ResetCounts) String() string {
	return fmt.Sprintf(
		"submissions=%d assignments=%d notes=%d programs=%d lessons=%d days=%d users=%d",
		c.Submissions, c.Assignments, c.Notes, c.Programs, c.Lessons, c.Days, c.Users,
	)
}

func (svc *service) Reset(ctx context.Context) (ResetCounts, error) {
	counts, err := svc.repo.ResetApp(ctx)
	if err != nil {
		return ResetCounts{}, errors.Wrap(err, "resetting app")
	}
	svc.logger.Info("app reset: " + counts.String())
	return counts, nil
}
