// cmd/libradesk/app.go
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"libradesk/internal/catalog"
	"libradesk/internal/circulation"
	"libradesk/internal/clients"
	"libradesk/internal/config"
	"libradesk/internal/logger"
	"libradesk/internal/patron"
	"libradesk/internal/payments"
	"libradesk/internal/server"
	"libradesk/internal/store"
	"libradesk/internal/store/postgres"
	"libradesk/internal/store/sqlite"
)

// app carries what every subcommand needs. It is filled in by the root
// command's PersistentPreRunE.
type app struct {
	cfg *config.Config
	log *logrus.Logger
	now func() time.Time
}

func newRootCmd() *cobra.Command {
	a := &app{now: time.Now}
	var (
		driver, sqlitePath, dsn string
		logLevel, logFormat     string
	)

	root := &cobra.Command{
		Use:           "libradesk",
		Short:         "Library catalog, circulation and late fee desk",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("driver") {
				cfg.StoreDriver = driver
			}
			if flags.Changed("sqlite-path") {
				cfg.SQLitePath = sqlitePath
			}
			if flags.Changed("database-url") {
				cfg.DatabaseURL = dsn
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if flags.Changed("log-format") {
				cfg.LogFormat = logFormat
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			a.cfg, a.log = cfg, log
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&driver, "driver", config.DriverSQLite, "store driver (sqlite or postgres)")
	pf.StringVar(&sqlitePath, "sqlite-path", "library.db", "SQLite database file")
	pf.StringVar(&dsn, "database-url", "", "Postgres connection string")
	pf.StringVar(&logLevel, "log-level", "info", "log level")
	pf.StringVar(&logFormat, "log-format", "text", "log format (text or json)")

	root.AddCommand(
		a.serveCmd(),
		a.migrateCmd(),
		a.bookCmd(),
		a.borrowCmd(),
		a.returnCmd(),
		a.feeCmd(),
		a.statusCmd(),
	)
	return root
}

// openStore opens the configured store and brings its schema up to date.
func (a *app) openStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch a.cfg.StoreDriver {
	case config.DriverPostgres:
		st, err = postgres.Open(ctx, a.cfg.DatabaseURL)
	default:
		st, err = sqlite.Open(a.cfg.SQLitePath)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", a.cfg.StoreDriver, err)
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return st, nil
}

// services wires the rule engines over st.
func (a *app) services(st store.Store) (server.Services, error) {
	books := catalog.NewService(st, catalog.WithLogger(a.log))
	loans := circulation.NewService(st, circulation.WithClock(a.now), circulation.WithLogger(a.log))

	gateway, err := clients.NewPaymentClient(a.cfg.GatewayURL, []byte(a.cfg.GatewayKey), a.cfg.RatePerMin, clients.WithLogger(a.log))
	if err != nil {
		return server.Services{}, err
	}

	return server.Services{
		Catalog:     books,
		Circulation: loans,
		Patrons:     patron.NewService(st, patron.WithClock(a.now), patron.WithLogger(a.log)),
		Payments:    payments.NewService(loans, books, gateway, payments.WithLogger(a.log)),
	}, nil
}

// withServices opens the store, runs fn and closes the store.
func (a *app) withServices(ctx context.Context, fn func(server.Services) error) error {
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	svc, err := a.services(st)
	if err != nil {
		return err
	}
	return fn(svc)
}
