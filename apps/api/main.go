package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	echoapi "github.com/zerlake/thesisai-philippines-sub009/apps/api/echo"
	"github.com/zerlake/thesisai-philippines-sub009/core"
	"github.com/zerlake/thesisai-philippines-sub009/core/apierr"
	"github.com/zerlake/thesisai-philippines-sub009/core/dashboard"
	"github.com/zerlake/thesisai-philippines-sub009/core/notification"
	"github.com/zerlake/thesisai-philippines-sub009/core/personalization"
	"github.com/zerlake/thesisai-philippines-sub009/core/widget"
	logsvc "github.com/zerlake/thesisai-philippines-sub009/services/logger"
	"github.com/zerlake/thesisai-philippines-sub009/storage/database"
	dummydb "github.com/zerlake/thesisai-philippines-sub009/storage/database/dummy"
	sqlxrepos "github.com/zerlake/thesisai-philippines-sub009/storage/database/sqlx"
	"github.com/zerlake/thesisai-philippines-sub009/storage/realtime"
)

// dummyEngine keeps every table in memory.
const dummyEngine = "dummy"

type storage struct {
	widgets       widget.Store
	notifications notification.Repository
	stream        notification.Stream
	close         func() error
}

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

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// set up DB
	store, err := setUpStorage(ctx, conf, dbLogger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up storage: %v", err), err)
	}
	defer func() {
		if err = store.close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate, translator := core.NewValidator()
	personalization.InitValidators(validate, translator)

	registry, err := widget.NewRegistry(logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("loading widget schemas: %v", err), err)
	}

	var source echoapi.WidgetSource
	if conf.Dashboard.ProviderURL != "" {
		manager := dashboard.NewManager(dashboard.Options{
			BaseURL:  conf.Dashboard.ProviderURL,
			Registry: registry,
			Errors:   apierr.NewHandler(logger),
			Logger:   logger,
			Defaults: dashboard.Config{TTL: conf.Dashboard.DefaultTTL, Timeout: conf.Dashboard.WidgetTimeout},
			Metrics:  prometheus.DefaultRegisterer,
		})
		source = echoapi.ManagerSource(manager)
	}

	pClient := personalization.NewClient(
		conf.Personalization.BaseURL,
		personalization.WithTimeout(conf.Personalization.Timeout),
		personalization.WithValidator(validate, translator),
	)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.
	// /metrics - Prometheus collectors.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	http.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:             conf,
			Logger:           logger,
			Validate:         validate,
			Translator:       translator,
			Registry:         registry,
			WidgetStore:      store.widgets,
			WidgetSource:     source,
			NotificationRepo: store.notifications,
			Stream:           store.stream,
			Personalization:  pClient,
		},
	)

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
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancelShutdown()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(shutdownCtx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpStorage(ctx context.Context, conf *core.Config, logger core.Logger) (*storage, error) {
	if conf.Database.Engine == dummyEngine {
		hub := realtime.NewHub(logger)
		db, err := dummydb.Open(dummydb.WithPublisher(hub.Publish))
		if err != nil {
			return nil, err
		}
		return &storage{
			widgets:       dummydb.NewWidgetStore(db),
			notifications: dummydb.NewNotificationRepository(db),
			stream:        hub,
			close:         func() error { return nil },
		}, nil
	}

	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}
	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}
	if err = database.Migrate(ctx, db.DB, "up"); err != nil {
		_ = db.Close()
		return nil, err
	}

	listener := realtime.NewListener(database.DSN(conf.Database.Name, false, conf), logger)
	go listener.Run(ctx)

	return &storage{
		widgets:       sqlxrepos.NewWidgetStore(db),
		notifications: sqlxrepos.NewNotificationRepository(db),
		stream:        listener,
		close: func() error {
			_ = listener.Close()
			return db.Close()
		},
	}, nil
}
