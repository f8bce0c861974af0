package main

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// pollCmd runs one cycle and exits, for deployments where an external
// scheduler owns the cadence.
func pollCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Run a single poll cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.poller.RunOnce(ctx)
			if err != nil {
				return err
			}
			log.Info().Int("dispatched", n).Msg("poll done")
			return nil
		},
	}
}
