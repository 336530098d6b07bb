package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/apps/api/di"
	echoapi "github.com/trezcool/academia/apps/api/echo"
	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
	cachesvc "github.com/trezcool/academia/services/cache"
	emailsvc "github.com/trezcool/academia/services/email"
	jobsvc "github.com/trezcool/academia/services/jobs"
	lmssvc "github.com/trezcool/academia/services/lms"
	logsvc "github.com/trezcool/academia/services/logger"
	"github.com/trezcool/academia/services/scheduler"
	storagesvc "github.com/trezcool/academia/services/storage"
	"github.com/trezcool/academia/storage/database"
	inmemdb "github.com/trezcool/academia/storage/database/inmem"
	sqlxrepos "github.com/trezcool/academia/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	zl, err := logsvc.NewZap(conf)
	if err != nil {
		log.Fatalf("setting up zap: %v", err)
	}
	logger := logsvc.NewRollbarLogger(zl.Named("api"), conf)
	defer logger.Sync()

	ctx := context.Background()
	infra := di.Infra{Conf: conf, Logger: logger}

	// set up DB
	closeDB, err := setUpDB(ctx, conf, &infra)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = closeDB(); err != nil {
			logger.Error(fmt.Sprintf("closing database: %v", err), err)
		}
	}()

	// set up cache
	if conf.Redis.Address != "" {
		cache, closeCache, err := cachesvc.NewRedisCache(ctx, conf)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up redis: %v", err), err)
		}
		defer func() { _ = closeCache() }()
		infra.Cache = cache
	} else {
		infra.Cache = cachesvc.NewMemoryCache()
	}

	if infra.Storage, err = storagesvc.NewLocalStorage(conf.StorageRoot, "/media"); err != nil {
		logger.Fatal(fmt.Sprintf("setting up storage: %v", err), err)
	}

	if conf.Debug {
		infra.MailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		infra.MailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	infra.LMS = lmssvc.NewClient(conf, logger)
	jobs := jobsvc.NewDispatcher(conf.JobWorkers, logger)
	infra.Jobs = jobs

	services, err := di.NewContainer(infra)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up services: %v", err), err)
	}

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	core.ParseEmailTemplates(conf, logger)

	user.LoadCommonPasswords(logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Scheduler

	sched, err := scheduler.New(conf.Cron, scheduler.Deps{
		Exports:    services.CourseSvc,
		Dashboards: services.DashboardSvc,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up scheduler: %v", err), err)
	}
	sched.Start()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:       conf,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		Services:   services,
	})

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))
	}

	// give outstanding requests and jobs a deadline for completion
	ctx, cancel := context.WithTimeout(ctx, conf.Server.ShutdownTimeout)
	defer cancel()

	// asking listener to shutdown and shed load
	if err = server.Shutdown(ctx); err != nil {
		logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

		if err = server.Close(); err != nil {
			logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
		}
	}
	if err = sched.Stop(ctx); err != nil {
		logger.Warn(fmt.Sprintf("scheduler stopped before its tasks finished: %v", err), err)
	}
	if err = jobs.Shutdown(ctx); err != nil {
		logger.Warn(fmt.Sprintf("jobs dropped on shutdown: %v", err), err)
	}
}

// setUpDB fills the repositories of infra. The "memory" engine keeps everything in process.
func setUpDB(ctx context.Context, conf *core.Config, infra *di.Infra) (func() error, error) {
	if conf.Database.Engine == "memory" {
		db := inmemdb.Open()
		infra.Repos = di.InmemRepositories(db)
		infra.Tx = db
		return func() error { return nil }, nil
	}

	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}
	db, err := database.Open(ctx, conf)
	if err != nil {
		return nil, err
	}
	if err = database.Migrate(ctx, db.DB); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "migrating")
	}
	infra.Repos = di.SQLRepositories(db)
	infra.Tx = sqlxrepos.NewTransactor(db)
	return db.Close, nil
}
