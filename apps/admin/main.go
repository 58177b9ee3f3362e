package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/cornelabs/lms/core"
	logsvc "github.com/cornelabs/lms/services/logger"
	"github.com/cornelabs/lms/storage/database"
	sqlxrepos "github.com/cornelabs/lms/storage/database/sqlx"
)

func main() {
	if err := run(); err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func run() error {
	conf := core.NewConfig()
	logger := logsvc.NewLogger(conf, "ADMIN")
	defer logger.Sync()

	if conf.Database.Engine != core.DatabaseEnginePostgres {
		return errors.Errorf("unsupported database engine %q: the admin CLI needs postgres", conf.Database.Engine)
	}

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close the database", err)
		}
	}()

	// start CLI
	cli := &commandLine{
		logger:  logger,
		db:      db,
		usrRepo: sqlxrepos.NewUserRepository(db),
		out:     os.Stdout,
	}
	return cli.run(os.Args[1:])
}
