package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"nudger/internal/config"
	"nudger/internal/feed"
	"nudger/internal/i18n"
	"nudger/internal/notify"
	"nudger/internal/queue"
	"nudger/internal/storage"
	"nudger/internal/tasks"
	"nudger/internal/worker"
)

func main() {
	var envFile string
	root := &cobra.Command{
		Use:           "nudger",
		Short:         "Deferred notification task scheduler",
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional dotenv file")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(envFile)
		if err != nil {
			return nil, err
		}
		setupLogging(cfg.Log)
		return cfg, nil
	}
	root.AddCommand(serveCmd(load), pollCmd(load), migrateCmd(load))

	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("nudger")
	}
}

func setupLogging(c config.Log) {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.Level))
	if err != nil || c.Level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if c.Format != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
}

type loader func() (*config.Config, error)

// app holds everything one process needs to create and run tasks.
type app struct {
	db       *storage.DB
	repo     queue.Store
	feed     *feed.SQLFeed
	factory  *tasks.Factory
	poller   *worker.Poller
	shutdown []func()
}

func (a *app) Close() {
	for i := len(a.shutdown) - 1; i >= 0; i-- {
		a.shutdown[i]()
	}
}

func openDB(ctx context.Context, cfg *config.Config) (*storage.DB, error) {
	db, err := storage.Open(ctx, storage.Config{Driver: cfg.DB.Driver, DSN: cfg.DB.DSN, BusyTimeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := queue.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := feed.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &app{db: db, shutdown: []func(){func() { _ = db.Close() }}}

	catalog, err := i18n.Load(cfg.Notify.CatalogPath)
	if err != nil {
		a.Close()
		return nil, err
	}
	transport, closeTransport, err := notify.OpenTransport(notify.TransportConfig{
		Kind:        cfg.Notify.Transport,
		NATSURL:     cfg.Notify.NATSURL,
		NATSSubject: cfg.Notify.NATSSubject,
		RedisAddr:   cfg.Notify.RedisAddr,
		RedisStream: cfg.Notify.RedisStream,
		WebhookURL:  cfg.Notify.WebhookURL,
		WebhookAuth: cfg.Notify.WebhookAuth,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.shutdown = append(a.shutdown, closeTransport)

	a.repo = queue.NewRepo(db)
	a.feed = feed.NewSQLFeed(db)
	a.factory = tasks.NewFactory(a.repo)
	dispatcher := notify.NewDispatcher(a.feed, catalog, transport, cfg.Notify.RatePerSec)
	runner := tasks.NewRunner(a.repo, dispatcher, a.feed, a.feed)
	a.poller = worker.NewPoller(a.repo, runner, cfg.Poll.BatchSize, cfg.Poll.Workers)

	log.Info().
		Str("db", db.Dialect.String()).
		Str("transport", cfg.Notify.Transport).
		Int("batch", cfg.Poll.BatchSize).
		Msg("nudger ready")
	return a, nil
}
