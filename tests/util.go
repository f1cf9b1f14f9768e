// Package testutil holds the helpers shared by package tests.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/trezcool/codedays/core"
	"github.com/trezcool/codedays/core/content"
	"github.com/trezcool/codedays/core/coursework"
	"github.com/trezcool/codedays/core/site"
	"github.com/trezcool/codedays/core/user"
	logsvc "github.com/trezcool/codedays/services/logger"
	"github.com/trezcool/codedays/storage/database"
	"github.com/trezcool/codedays/storage/database/inmem"
	sqlxrepos "github.com/trezcool/codedays/storage/database/sqlx"
)

// DatabaseURLEnv names the postgres test database. Postgres tests are skipped when it is unset.
const DatabaseURLEnv = "TEST_DATABASE_URL"

type Repos struct {
	Users      user.Repository
	Content    content.Repository
	Coursework coursework.Repository
	Site       site.Repository
}

// NewLogger returns a Logger that prints nothing and never reports.
func NewLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(zap.NewNop(), conf)
}

// NewValidator returns a validator with every custom validation registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

// MemoryRepos returns repositories sharing a fresh in-memory database.
func MemoryRepos() Repos {
	db := inmemdb.Open()
	return Repos{
		Users:      inmemdb.NewUserRepository(db),
		Content:    inmemdb.NewContentRepository(db),
		Coursework: inmemdb.NewCourseworkRepository(db),
		Site:       inmemdb.NewSiteRepository(db),
	}
}

// OpenDB opens and migrates the postgres test database, emptied of all rows.
func OpenDB(t *testing.T) *sqlx.DB {
	t.Helper()

	dbURL := os.Getenv(DatabaseURLEnv)
	if dbURL == "" {
		t.Skipf("%s is not set", DatabaseURLEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.OpenURL(dbURL)
	if err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Ping(ctx, db); err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	if err = database.Migrate(ctx, db); err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	ResetDB(t, db)
	return db
}

// ResetDB deletes every row and restarts the ids.
func ResetDB(t *testing.T, db *sqlx.DB) {
	t.Helper()
	q := "TRUNCATE submissions, assignments, notes, programs, lessons, days, users RESTART IDENTITY CASCADE"
	if _, err := db.Exec(q); err != nil {
		t.Fatalf("ResetDB() failed: %v", err)
	}
}

// SQLRepos returns the postgres repositories over db.
func SQLRepos(db *sqlx.DB) Repos {
	return Repos{
		Users:      sqlxrepos.NewUserRepository(db),
		Content:    sqlxrepos.NewContentRepository(db),
		Coursework: sqlxrepos.NewCourseworkRepository(db),
		Site:       sqlxrepos.NewSiteRepository(db),
	}
}

func CreateUser(t *testing.T, repo user.Repository, uname, email, pwd, role string, createdAt ...time.Time) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Username:  uname,
		Email:     email,
		Role:      role,
		CreatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}
