package main

import (
	"fmt"
	"log"
	"os"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/user"
	appfs "github.com/trezcool/kazi/fs"
	emailsvc "github.com/trezcool/kazi/services/email"
	logsvc "github.com/trezcool/kazi/services/logger"
	"github.com/trezcool/kazi/storage/database"
	"github.com/trezcool/kazi/storage/database/sqlxrepos"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)
	if err = user.LoadCommonPasswords(appfs.FS, appfs.CommonPasswordsFile); err != nil {
		logger.Fatal(fmt.Sprintf("loading common passwords: %v", err), err)
	}

	// start CLI
	cli := commandLine{
		db:       db.DB,
		usrSvc:   user.NewService(sqlxrepos.NewUserRepository(db), emailsvc.NewConsoleService(conf, logger), conf),
		validate: validate,
		out:      os.Stdout,
	}
	err = cli.run(os.Args[1:])
	_ = db.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
