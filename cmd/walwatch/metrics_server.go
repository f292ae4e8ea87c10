package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/torosent/walwatch/internal/metrics"
)

// serveMetrics exposes the exporter on addr/metrics and returns a function
// that shuts the server down.
func serveMetrics(addr string, exporter *metrics.Exporter, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", exporter.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown", "error", err)
			_ = srv.Close()
		}
	}
}
