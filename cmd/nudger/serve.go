package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"nudger/internal/api"
	"nudger/internal/scheduler"
)

func serveCmd(load loader) *cobra.Command {
	var (
		addr     string
		schedule string
		debug    bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the poll scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			if schedule != "" {
				cfg.Poll.Schedule = schedule
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			sched, err := scheduler.NewService(a.poller, cfg.Poll.Schedule)
			if err != nil {
				return err
			}
			schedDone := make(chan struct{})
			go func() {
				defer close(schedDone)
				if err := sched.Start(ctx); err != nil {
					log.Error().Err(err).Msg("scheduler")
					cancel()
				}
			}()

			gate := api.Gate(api.AllowAll{})
			if len(cfg.HTTP.Operators) > 0 {
				gate = api.NewOperators(cfg.HTTP.Operators)
			}
			srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: api.NewServerWithDebug(a.repo, a.factory, a.feed, gate, debug)}
			go func() {
				log.Info().Str("addr", cfg.HTTP.Addr).Msg("HTTP server starting")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error().Err(err).Msg("http server")
					cancel()
				}
			}()

			if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
				log.Warn().Err(err).Msg("sd_notify ready")
			} else if ok {
				log.Debug().Msg("notified systemd")
			}

			<-ctx.Done()
			log.Info().Msg("shutting down")
			_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

			ctxTimeout, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelTimeout()
			_ = srv.Shutdown(ctxTimeout)
			<-schedDone
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP bind address (overrides NUDGER_HTTP_ADDR)")
	cmd.Flags().StringVar(&schedule, "schedule", "", "poll cron schedule (overrides NUDGER_POLL_SCHEDULE)")
	cmd.Flags().BoolVar(&debug, "debug", false, "expose pprof handlers")
	return cmd
}
