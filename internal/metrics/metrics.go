// Package metrics exposes Prometheus collectors for script lifecycle events
// and resource usage of running scripts.
package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	scriptStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scriptherd",
			Subsystem: "script",
			Name:      "starts_total",
			Help:      "Number of successful script launches.",
		}, []string{"script"},
	)
	scriptStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scriptherd",
			Subsystem: "script",
			Name:      "stops_total",
			Help:      "Number of user or scheduler initiated stops.",
		}, []string{"script"},
	)
	scriptFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scriptherd",
			Subsystem: "script",
			Name:      "failures_total",
			Help:      "Number of launches that failed to spawn or exited non-zero.",
		}, []string{"script"},
	)
	scheduleTriggers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scriptherd",
			Subsystem: "schedule",
			Name:      "triggers_total",
			Help:      "Number of scheduler-initiated launches.",
		}, []string{"script"},
	)
	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scriptherd",
			Subsystem: "script",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock run time of completed script runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}, []string{"script"},
	)
	runningScripts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "scriptherd",
			Subsystem: "script",
			Name:      "running",
			Help:      "Scripts currently running.",
		},
	)
	scriptCPU = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "scriptherd",
			Subsystem: "script",
			Name:      "cpu_percent",
			Help:      "CPU usage of a running script process.",
		}, []string{"script"},
	)
	scriptMemory = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "scriptherd",
			Subsystem: "script",
			Name:      "memory_mb",
			Help:      "Resident memory of a running script process in MB.",
		}, []string{"script"},
	)
)

// Register registers all collectors with r. Safe to call multiple times and
// with multiple registries; AlreadyRegisteredError from a shared registry is
// ignored. Collectors are package-level, so a second registry sees the same
// series.
func Register(r prometheus.Registerer) error {
	cs := []prometheus.Collector{
		scriptStarts, scriptStops, scriptFailures, scheduleTriggers,
		runDuration, runningScripts, scriptCPU, scriptMemory,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves the DefaultGatherer; the caller wires the route.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register has been called.

func IncStart(script string) {
	if regOK.Load() {
		scriptStarts.WithLabelValues(script).Inc()
	}
}

func IncStop(script string) {
	if regOK.Load() {
		scriptStops.WithLabelValues(script).Inc()
	}
}

func IncFailure(script string) {
	if regOK.Load() {
		scriptFailures.WithLabelValues(script).Inc()
	}
}

func IncScheduleTrigger(script string) {
	if regOK.Load() {
		scheduleTriggers.WithLabelValues(script).Inc()
	}
}

func ObserveRunDuration(script string, seconds float64) {
	if regOK.Load() {
		runDuration.WithLabelValues(script).Observe(seconds)
	}
}

func SetRunning(n int) {
	if regOK.Load() {
		runningScripts.Set(float64(n))
	}
}

func SetResourceUsage(script string, cpuPercent, memoryMB float64) {
	if regOK.Load() {
		scriptCPU.WithLabelValues(script).Set(cpuPercent)
		scriptMemory.WithLabelValues(script).Set(memoryMB)
	}
}

// ClearResourceUsage drops the per-script resource series once a script
// stops, so stale gauges do not linger in scrapes.
func ClearResourceUsage(script string) {
	if regOK.Load() {
		scriptCPU.DeleteLabelValues(script)
		scriptMemory.DeleteLabelValues(script)
	}
}
