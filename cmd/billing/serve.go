package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/jesses-code-adventures/billing/internal/api"
	"github.com/jesses-code-adventures/billing/internal/logger"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	var sweepEvery time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API",
		Long:  "Serve the billing API, /health and /metrics. The overdue and expiry sweeps run in the background when --sweep-every is set.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logger.WithComponent("server")

			srv := &http.Server{
				Addr:              addr,
				Handler:           api.NewRouter(a.svc, a.registry),
				ReadHeaderTimeout: 10 * time.Second,
			}

			if sweepEvery > 0 {
				go a.runSweeps(ctx, sweepEvery)
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", addr).Msg("listening")
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			log.Info().Msg("shutting down")
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("failed to shut down: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", a.cfg.HTTPAddr, "Listen address")
	cmd.Flags().DurationVar(&sweepEvery, "sweep-every", 0, "Interval of the overdue/expiry sweeps, 0 disables them")
	return cmd
}

// runSweeps marks overdue invoices and expires quotes across all
// organizations until ctx is done.
func (a *app) runSweeps(ctx context.Context, every time.Duration) {
	log := logger.WithComponent("sweeper")
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if _, err := a.svc.MarkOverdue(ctx, ""); err != nil {
			log.Error().Err(err).Msg("overdue sweep failed")
		}
		if _, err := a.svc.ExpireQuotes(ctx, ""); err != nil {
			log.Error().Err(err).Msg("expiry sweep failed")
		}
	}
}
