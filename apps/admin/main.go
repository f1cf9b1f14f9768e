package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/trezcool/codedays/core"
	"github.com/trezcool/codedays/core/site"
	"github.com/trezcool/codedays/core/user"
	logsvc "github.com/trezcool/codedays/services/logger"
	"github.com/trezcool/codedays/storage/database"
	inmemdb "github.com/trezcool/codedays/storage/database/inmem"
	sqlxrepos "github.com/trezcool/codedays/storage/database/sqlx"
)

func main() {
	os.Exit(run())
}

func run() int {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(logsvc.NewZapLogger(conf.Log), conf)
	defer logger.Close()

	var (
		sqlDB    *sql.DB
		usrRepo  user.Repository
		siteRepo site.Repository
	)
	if conf.Database.Engine == "memory" {
		db := inmemdb.Open()
		usrRepo = inmemdb.NewUserRepository(db)
		siteRepo = inmemdb.NewSiteRepository(db)
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		db, err := database.Open(conf)
		if err != nil {
			logger.Error(fmt.Sprintf("opening database: %v", err), err)
			return 1
		}
		defer db.Close()
		if err = database.Ping(ctx, db); err != nil {
			logger.Error(fmt.Sprintf("connecting to database: %v", err), err)
			return 1
		}
		sqlDB = db.DB
		usrRepo = sqlxrepos.NewUserRepository(db)
		siteRepo = sqlxrepos.NewSiteRepository(db)
	}

	cli := newCommandLine(sqlDB, usrRepo, site.NewService(siteRepo, logger))
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		return 1
	}
	return 0
}
