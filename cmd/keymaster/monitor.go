package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/KyberNetwork/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/crosschain-ops/keymaster"
)

var (
	flagMetricsPort  int
	flagPauseSeconds int
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Poll balances, nonces and block heights and export them as Prometheus gauges",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		registry := prometheus.NewRegistry()
		metrics := keymaster.NewMetrics(registry)
		monitor := keymaster.NewMonitor(topology, metrics, time.Duration(flagPauseSeconds)*time.Second)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		server := &http.Server{
			Addr:    fmt.Sprintf(":%d", flagMetricsPort),
			Handler: mux,
		}

		serverErr := make(chan error, 1)
		go func() {
			logger.Infof("Serving metrics on :%d/metrics", flagMetricsPort)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()

		go func() {
			select {
			case <-ctx.Done():
			case err := <-serverErr:
				logger.Errorf("Metrics server failed: %v", err)
				stop()
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()

		err := monitor.Run(ctx)
		if errors.Is(err, context.Canceled) {
			logger.Infof("Shutting down monitor")
			return nil
		}
		return err
	},
}

func init() {
	monitorCmd.Flags().IntVar(&flagMetricsPort, "metrics-port", 9090, "port to serve /metrics on")
	monitorCmd.Flags().IntVar(&flagPauseSeconds, "pause-duration", 30, "seconds between poll cycles")
}
