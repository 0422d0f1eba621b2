package metrics

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drblury/reqflow/internal/runtime/logging"
)

// Handler returns an HTTP handler exposing the metrics gathered by g. A nil
// g falls back to the default prometheus gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// StartServer exposes /metrics on the given port and returns the server so
// the caller can shut it down. The listener runs on its own goroutine.
func StartServer(port int, g prometheus.Gatherer, logger *slog.Logger) *http.Server {
	logger = logging.Default(logger)
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "port", port, "err", err)
		}
	}()
	return srv
}
