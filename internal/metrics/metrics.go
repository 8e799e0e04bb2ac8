// Package metrics exposes Prometheus instrumentation for cluster API traffic generated by the dashboard.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"github.com/orchestrix-io/orchestrix/internal/dev"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
	"time"
)

// Registry holds every orchestrix collector, kept apart from the global registry
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	resourceLoads = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrix_resource_loads_total",
			Help: "Total number of resource page loads",
		},
		[]string{"kind", "result", "source"},
	)

	resourceLoadDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestrix_resource_load_duration_seconds",
			Help:    "Latency of resource page loads served by the API server",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	deletes = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrix_deletes_total",
			Help: "Total number of delete requests",
		},
		[]string{"kind", "result"},
	)

	logLines = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "orchestrix_log_lines_total",
			Help: "Total number of streamed container log lines",
		},
	)

	activePortForwards = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "orchestrix_port_forwards_active",
			Help: "Number of currently active port forwards",
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Load sources
const (
	SourceAPI   = "api"
	SourceCache = "cache"
	SourceStale = "stale"
)

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveLoad records one page load of kind. Only loads that reached the API server contribute to latency.
func ObserveLoad(kind, source string, elapsed time.Duration, err error) {
	resourceLoads.WithLabelValues(kind, result(err), source).Inc()
	if source == SourceAPI {
		resourceLoadDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	}
}

func ObserveDelete(kind string, err error) {
	deletes.WithLabelValues(kind, result(err)).Inc()
}

func AddLogLines(n int) {
	logLines.Add(float64(n))
}

func SetActivePortForwards(n int) {
	activePortForwards.Set(float64(n))
}

// Serve exposes /metrics on addr until ctx is done
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		dev.Debug("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err, ok := <-errChan:
		if !ok {
			return nil
		}
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	}
}
