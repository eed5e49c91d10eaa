package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/patchkit/corepatch/internal/core"
)

const metricsShutdownTimeout = 5 * time.Second

var (
	installBytesDone = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "patchcore",
		Subsystem: "install",
		Name:      "bytes_done",
		Help:      "Bytes repaired so far by the current install run.",
	})
	installBytesTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "patchcore",
		Subsystem: "install",
		Name:      "bytes_total",
		Help:      "Total bytes the current install run expects to repair.",
	})
)

// maybeServeMetrics starts a /metrics HTTP endpoint on addr if addr is
// non-empty and returns a func to stop it; if addr is empty, it returns a
// no-op stop func.
func maybeServeMetrics(addr string) func() {
	if addr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			core.PushLogWarning(nil, "metrics server stopped: "+err.Error())
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
