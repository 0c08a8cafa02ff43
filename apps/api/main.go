package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // register the /debug/pprof handlers
	"os"

	"github.com/jmoiron/sqlx"

	echoapi "github.com/trezcool/kazi/apps/api/echo"
	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/subject"
	"github.com/trezcool/kazi/core/task"
	"github.com/trezcool/kazi/core/team"
	"github.com/trezcool/kazi/core/user"
	appfs "github.com/trezcool/kazi/fs"
	emailsvc "github.com/trezcool/kazi/services/email"
	logsvc "github.com/trezcool/kazi/services/logger"
	storagesvc "github.com/trezcool/kazi/services/storage"
	"github.com/trezcool/kazi/storage/database"
	"github.com/trezcool/kazi/storage/database/sqlxrepos"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)
	defer logger.Close()

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()

	// set up repositories
	tx := sqlxrepos.NewTxRunner(db)
	usrRepo := sqlxrepos.NewUserRepository(db)
	subjectRepo := sqlxrepos.NewSubjectRepository(db)
	teamRepo := sqlxrepos.NewTeamRepository(db)
	taskRepo := sqlxrepos.NewTaskRepository(db)

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	fileStorage, err := storagesvc.NewDiskStorage(conf.Uploads.Dir, conf.Uploads.URLPrefix)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up file storage: %v", err), err)
	}

	usrSvc := user.NewService(usrRepo, mailSvc, conf)
	subjectSvc := subject.NewService(subjectRepo, usrRepo, tx)
	teamSvc := team.NewService(teamRepo, subjectSvc, usrRepo, tx)
	taskSvc := task.NewService(taskRepo, teamSvc, subjectSvc, fileStorage, tx, logger, conf)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)

	if err = core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf.Debug); err != nil {
		logger.Fatal(fmt.Sprintf("parsing email templates: %v", err), err)
	}
	if err = user.LoadCommonPasswords(appfs.FS, appfs.CommonPasswordsFile); err != nil {
		logger.Fatal(fmt.Sprintf("loading common passwords: %v", err), err)
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugAddress, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:       conf,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		UserSvc:    usrSvc,
		SubjectSvc: subjectSvc,
		TeamSvc:    teamSvc,
		TaskSvc:    taskSvc,
	})

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
