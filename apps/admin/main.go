package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/trezcool/congress/core"
	"github.com/trezcool/congress/core/diploma"
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

func main() {
	os.Exit(start())
}

func start() int {
	conf := core.NewConfig()

	zl, err := logsvc.NewZap(conf)
	if err != nil {
		log.Printf("building zap logger: %v", err)
		return 1
	}
	logger := logsvc.NewRollbarLogger(zl, conf)
	defer logger.Close()

	// set up DB
	ctx := context.Background()
	if err = database.CreateIfNotExist(ctx, conf); err != nil {
		logger.Error(fmt.Sprintf("creating database: %v", err), err)
		return 1
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Error(fmt.Sprintf("opening database: %v", err), err)
		return 1
	}
	//goland:noinspection GoUnhandledErrorResult
	defer db.Close()

	// set up services
	mailSvc := emailsvc.New(conf, logger)
	defer mailSvc.Wait() // flush queued emails before exiting
	fileStorage, err := storagesvc.New(ctx, conf, logger)
	if err != nil {
		logger.Error(fmt.Sprintf("setting up file storage: %v", err), err)
		return 1
	}
	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, false, logger)
	if err = user.LoadCommonPasswords(conf.WorkDir); err != nil {
		logger.Warn(fmt.Sprintf("loading common passwords: %v", err), err)
	}

	// start CLI
	cli := commandLine{
		db:     db,
		usrSvc: user.NewService(sqlxrepos.NewUserRepository(db), mailSvc, conf),
		diplomaSvc: diploma.NewService(
			boiledrepos.NewDiplomaRepository(db),
			map[string]diploma.Renderer{
				diploma.FormatPDF: rendersvc.NewPDF(),
				diploma.FormatPNG: rendersvc.NewPNG(),
			},
			fileStorage,
			mailSvc,
			logger,
			conf,
		),
		out: os.Stdout,
	}
	if err = cli.run(os.Args[1:]); err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %v", err), err)
		}
		return 1
	}
	return 0
}
