package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matthewjhunter/coviddash"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func daemonCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run sync in a loop with configurable interval",
		Long: `Continuously sync every category on a timer.
Designed for running inside a Docker container or as a background service.
Handles SIGINT/SIGTERM for graceful shutdown (finishes the current cycle).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval == 0 {
				interval = cfg.Sync.Interval.Std()
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			log := logrus.WithField("component", "daemon")
			if _, err := engine.Start(ctx); err != nil && !errors.Is(err, coviddash.ErrNoData) {
				return err
			}
			log.WithField("interval", interval).Info("coviddash daemon: starting")

			cycle := 1
			for {
				start := time.Now()
				entry := log.WithField("cycle", cycle)

				result, err := engine.Sync(ctx)
				switch {
				case err != nil:
					entry.WithError(err).Error("coviddash daemon: cycle failed")
				default:
					entry.WithFields(logrus.Fields{
						"status":       result.Status,
						"updated":      result.Updated,
						"not_modified": result.NotModified,
						"failed":       result.Failed,
						"elapsed":      time.Since(start).Round(time.Millisecond),
					}).Info("coviddash daemon: cycle completed")
				}

				cycle++

				// Wait for the next tick or a shutdown signal.
				timer := time.NewTimer(interval)
				select {
				case <-sig:
					timer.Stop()
					log.Info("coviddash daemon: received shutdown signal, exiting")
					return nil
				case <-timer.C:
				}
			}
		},
	}

	cmd.Flags().DurationVarP(&interval, "interval", "i", 0, "duration between sync cycles (default: sync.interval from config)")
	return cmd
}
