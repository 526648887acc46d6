package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"ticketwatch/internal/api"
	"ticketwatch/internal/config"
	"ticketwatch/pkg/logger"
	"ticketwatch/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func setupServer(ctx context.Context, cfg *config.Config, deps api.Deps) func(ctx context.Context) {
	server := api.NewServer(ctx, deps, api.NewOptions(cfg))

	go func() {
		logger.Info(ctx, "starting status server...", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				logger.Error(ctx, "could not start status server", zap.Error(err))
			}
		}
	}()

	return func(ctx context.Context) {
		logger.Info(ctx, "stopping status server...")
		if err := server.Shutdown(ctx); err != nil {
			logger.Error(ctx, "could not stop status server", zap.Error(err))
		}
	}
}

func watchCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Polls the page until interrupted and notifies on every change",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(a.ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			mp, err := metrics.NewMeterProvider(reg)
			if err != nil {
				return err
			}
			defer func() {
				if err := mp.Shutdown(context.WithoutCancel(ctx)); err != nil {
					logger.Warn(ctx, "could not shut down meter provider", zap.Error(err))
				}
			}()

			loop, err := newLoop(a.cfg, mp)
			if err != nil {
				return err
			}

			if a.cfg.HTTP.Addr != "" {
				stopServer := setupServer(ctx, a.cfg, api.Deps{Status: loop, Gatherer: reg})
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.GracefulShutdownTimeout)
					defer cancel()

					stopServer(shutdownCtx)
				}()
			}

			return loop.Run(ctx)
		},
	}

	return cmd
}
