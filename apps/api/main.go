package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"

	"github.com/jmoiron/sqlx"

	echoapi "github.com/trezcool/congress/apps/api/echo"
	"github.com/trezcool/congress/core"
	"github.com/trezcool/congress/core/activity"
	"github.com/trezcool/congress/core/attendance"
	"github.com/trezcool/congress/core/diploma"
	"github.com/trezcool/congress/core/enrollment"
	"github.com/trezcool/congress/core/payment"
	"github.com/trezcool/congress/core/result"
	"github.com/trezcool/congress/core/user"
	appfs "github.com/trezcool/congress/fs"
	emailsvc "github.com/trezcool/congress/services/email"
	logsvc "github.com/trezcool/congress/services/logger"
	rendersvc "github.com/trezcool/congress/services/render"
	storagesvc "github.com/trezcool/congress/services/storage"
	"github.com/trezcool/congress/storage/database"
	boiledrepos "github.com/trezcool/congress/storage/database/sqlboiler"
	sqlxrepos "github.com/trezcool/congress/storage/database/sqlx"
)

// TODO:
// - CSRF
// - APM/Tracing
func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up logger
	zl, err := logsvc.NewZap(conf)
	if err != nil {
		log.Fatalf("building zap logger: %v", err)
	}
	logger := logsvc.NewRollbarLogger(zl, conf)
	defer logger.Close()

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error("failed to close database", err)
		}
	}()

	// set up services
	mailSvc := emailsvc.New(conf, logger)
	defer mailSvc.Wait()

	fileStorage, err := storagesvc.New(context.Background(), conf, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up file storage: %v", err), err)
	}

	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), mailSvc, conf)
	actSvc := activity.NewService(sqlxrepos.NewActivityRepository(db))
	enrSvc := enrollment.NewService(sqlxrepos.NewEnrollmentRepository(db))
	diplomaSvc := diploma.NewService(
		boiledrepos.NewDiplomaRepository(db),
		map[string]diploma.Renderer{
			diploma.FormatPDF: rendersvc.NewPDF(),
			diploma.FormatPNG: rendersvc.NewPNG(),
		},
		fileStorage,
		mailSvc,
		logger,
		conf,
	)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, false, logger)

	if err = user.LoadCommonPasswords(conf.WorkDir); err != nil {
		logger.Warn(fmt.Sprintf("loading common passwords: %v", err), err)
	}

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
	// Start Diploma Scanner

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()

	if conf.Diploma.ScanInterval > 0 {
		logger.Info(fmt.Sprintf("diploma scanner running every %s", conf.Diploma.ScanInterval))
		go diplomaSvc.Run(runCtx, conf.Diploma.ScanInterval)
	}

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(&echoapi.Deps{
		Conf:          conf,
		Logger:        logger,
		UserSvc:       usrSvc,
		ActivitySvc:   actSvc,
		EnrollmentSvc: enrSvc,
		AttendanceSvc: attendance.NewService(sqlxrepos.NewAttendanceRepository(db), usrSvc, actSvc, enrSvc),
		PaymentSvc:    payment.NewService(sqlxrepos.NewPaymentRepository(db), usrSvc, actSvc, enrSvc),
		ResultSvc:     result.NewService(sqlxrepos.NewResultRepository(db), enrSvc),
		DiplomaSvc:    diplomaSvc,
	})

	go server.Start()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))
		stopRun()

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(context.Background(), conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db, "up"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
