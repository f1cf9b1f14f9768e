// Package digcontainer wires the API dependencies with dig.
package digcontainer

import (
	"context"
	"fmt"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/codedays/apps/api/echo"
	"github.com/trezcool/codedays/core"
	"github.com/trezcool/codedays/core/content"
	"github.com/trezcool/codedays/core/coursework"
	"github.com/trezcool/codedays/core/site"
	"github.com/trezcool/codedays/core/user"
	emailsvc "github.com/trezcool/codedays/services/email"
	logsvc "github.com/trezcool/codedays/services/logger"
	"github.com/trezcool/codedays/storage/database"
	inmemdb "github.com/trezcool/codedays/storage/database/inmem"
	sqlxrepos "github.com/trezcool/codedays/storage/database/sqlx"
	"github.com/trezcool/codedays/storage/files"
	"github.com/trezcool/codedays/storage/sessions"
)

const setupTimeout = 30 * time.Second

// Closer releases a resource opened by the container.
type Closer func() error

type (
	// Storage is every repository plus the function closing their backend.
	Storage struct {
		dig.Out
		Users      user.Repository
		Content    content.Repository
		Coursework coursework.Repository
		Site       site.Repository
		Close      Closer `name:"dbCloser"`
	}

	// DBCloserParam receives the Close function of Storage.
	DBCloserParam struct {
		dig.In
		Close Closer `name:"dbCloser"`
	}

	ServerParams struct {
		dig.In
		Conf          *core.Config
		Logger        core.Logger
		UserSvc       user.Service
		ContentSvc    content.Service
		CourseworkSvc coursework.Service
		SiteSvc       site.Service
		Files         core.FileStore
		Sessions      sessions.Store
	}
)

func newLogger(conf *core.Config) *logsvc.RollbarLogger {
	return logsvc.NewRollbarLogger(logsvc.NewZapLogger(conf.Log), conf)
}

func asLogger(l *logsvc.RollbarLogger) core.Logger { return l }

// newStorage opens postgres (creating and migrating it when needed) or an in-memory database.
func newStorage(conf *core.Config, logger core.Logger) (Storage, error) {
	if conf.Database.Engine == "memory" {
		logger.Warn("using the in-memory database: data is lost on exit")
		db := inmemdb.Open()
		return Storage{
			Users:      inmemdb.NewUserRepository(db),
			Content:    inmemdb.NewContentRepository(db),
			Coursework: inmemdb.NewCourseworkRepository(db),
			Site:       inmemdb.NewSiteRepository(db),
			Close:      func() error { return nil },
		}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()

	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return Storage{}, err
	}
	db, err := database.Open(conf)
	if err != nil {
		return Storage{}, err
	}
	if err = database.Ping(ctx, db); err != nil {
		_ = db.Close()
		return Storage{}, err
	}
	if err = database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return Storage{}, err
	}
	logger.Info(fmt.Sprintf("connected to postgres at %s/%s", conf.Database.Address(), conf.Database.Name))

	return Storage{
		Users:      sqlxrepos.NewUserRepository(db),
		Content:    sqlxrepos.NewContentRepository(db),
		Coursework: sqlxrepos.NewCourseworkRepository(db),
		Site:       sqlxrepos.NewSiteRepository(db),
		Close:      db.Close,
	}, nil
}

// newSessionStore uses redis when an address is configured.
func newSessionStore(conf *core.Config, logger core.Logger) (sessions.Store, error) {
	if conf.Redis.Addr == "" {
		logger.Warn("no redis address: revoked sessions are kept in memory")
		return sessions.NewMemoryStore(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()

	rdb, err := sessions.NewRedisClient(ctx, conf.Redis)
	if err != nil {
		return nil, err
	}
	return sessions.NewRedisStore(rdb), nil
}

func newValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

func newFileStore(conf *core.Config) core.FileStore {
	return files.NewLocalStore(conf.Uploads)
}

func newServer(p ServerParams) (echoapi.Server, error) {
	return echoapi.NewServer(&echoapi.Options{
		Conf:          p.Conf,
		Logger:        p.Logger,
		UserSvc:       p.UserSvc,
		ContentSvc:    p.ContentSvc,
		CourseworkSvc: p.CourseworkSvc,
		SiteSvc:       p.SiteSvc,
		Files:         p.Files,
		Sessions:      p.Sessions,
	})
}

// New returns the dependency injection container of the API.
func New(conf *core.Config) (*dig.Container, error) {
	c := dig.New()

	constructors := []interface{}{
		func() *core.Config { return conf },
		newLogger,
		asLogger,
		newStorage,
		newSessionStore,
		newValidator,
		newFileStore,
		emailsvc.NewService,
		user.NewService,
		content.NewService,
		coursework.NewService,
		site.NewService,
		newServer,
	}
	for _, fn := range constructors {
		if err := c.Provide(fn); err != nil {
			return nil, errors.Wrap(err, "failed to provide dependency")
		}
	}
	return c, nil
}
