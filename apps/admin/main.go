package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/zerlake/thesisai-philippines-sub009/core"
	"github.com/zerlake/thesisai-philippines-sub009/core/notification"
	"github.com/zerlake/thesisai-philippines-sub009/core/widget"
	emailsvc "github.com/zerlake/thesisai-philippines-sub009/services/email"
	logsvc "github.com/zerlake/thesisai-philippines-sub009/services/logger"
	"github.com/zerlake/thesisai-philippines-sub009/storage/database"
	dummydb "github.com/zerlake/thesisai-philippines-sub009/storage/database/dummy"
	sqlxrepos "github.com/zerlake/thesisai-philippines-sub009/storage/database/sqlx"
)

const dummyEngine = "dummy"

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	registry, err := widget.NewRegistry(logger)
	if err != nil {
		logger.Fatal("loading widget schemas", err)
	}

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, os.Stdout, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	core.ParseEmailTemplates(notification.Templates, "templates", logger)

	cli := &commandLine{
		logger:     logger,
		out:        os.Stdout,
		registry:   registry,
		email:      mailSvc,
		isTerminal: func() bool { return term.IsTerminal(int(os.Stdout.Fd())) },
	}

	// set up DB
	if conf.Database.Engine == dummyEngine {
		db, _ := dummydb.Open()
		cli.repo = dummydb.NewNotificationRepository(db)
		cli.migrateFunc = func(context.Context, string, ...string) error {
			return core.NewValidationError(nil, core.FieldError{Field: "dbEngine", Error: "migrations need postgres"})
		}
	} else {
		db, err := database.Open(conf)
		if err != nil {
			logger.Fatal("opening database", err)
		}
		defer func() { _ = db.Close() }()

		cli.repo = sqlxrepos.NewNotificationRepository(db)
		cli.migrateFunc = func(ctx context.Context, command string, args ...string) error {
			return database.Migrate(ctx, db.DB, command, args...)
		}
	}

	// start CLI
	if err = cli.run(ctx, os.Args); err != nil {
		if err != errHelp {
			log.Printf("\nerror: %s\n", err)
		}
		cancel()
		os.Exit(1)
	}
}
