package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"

	digcontainer "github.com/trezcool/codedays/apps/api/di/dig"
	echoapi "github.com/trezcool/codedays/apps/api/echo"
	"github.com/trezcool/codedays/core"
	appfs "github.com/trezcool/codedays/fs"
	logsvc "github.com/trezcool/codedays/services/logger"
)

func main() {
	conf := core.NewConfig()

	c, err := digcontainer.New(conf)
	if err != nil {
		log.Fatal(err)
	}

	err = c.Invoke(func(
		logger *logsvc.RollbarLogger,
		dbCloser digcontainer.DBCloserParam,
		server echoapi.Server,
	) {
		// =========================================================================
		// Initialize App

		defer logger.Close()
		logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
		defer logger.Info("Application stopped")

		core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf, logger)

		defer func() {
			if err := dbCloser.Close(); err != nil {
				logger.Error(fmt.Sprintf("closing database: %v", err), err)
			}
		}()

		// =========================================================================
		// Start Debug Service
		//
		// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
		// /debug/vars - Added to the default mux by importing the expvar package.

		expvar.NewString("build").Set(conf.Build)
		expvar.NewString("env").Set(conf.Env)

		if conf.Server.DebugHost != "" {
			go func() {
				if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
					logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
				}
			}()
		}

		// =========================================================================
		// Start API Service

		go server.Start()

		// =========================================================================
		// Shutdown

		select {
		case err := <-server.Errors():
			logger.Error(fmt.Sprintf("server error: %v", err), err)

		case sig := <-server.ShutdownSignal():
			logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

			// give outstanding requests a deadline for completion
			ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
			defer cancel()

			if err := server.Shutdown(ctx); err != nil {
				logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

				if err = server.Close(); err != nil {
					logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
				}
			}
		}
	})
	if err != nil {
		log.Fatal(err)
	}
}
