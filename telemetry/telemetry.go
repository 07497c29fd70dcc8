// Package telemetry holds mirrordb's Prometheus metrics. Every metric starts
// as a no-op; Init swaps in registered collectors when Prometheus is enabled
// so call sites never check whether metrics are on.
package telemetry

import (
	"net/http"

	"github.com/maxpert/mirrordb/cfg"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const namespace = "mirrordb"

var registry *prometheus.Registry

type Counter interface {
	Inc()
	Add(float64)
}

type Gauge interface {
	Set(float64)
	Inc()
	Dec()
	Add(float64)
}

type Histogram interface {
	Observe(float64)
}

// Family is a labeled metric; With takes label values in declaration order
type Family[M any] interface {
	With(values ...string) M
}

type (
	CounterVec   = Family[Counter]
	GaugeVec     = Family[Gauge]
	HistogramVec = Family[Histogram]
)

// nop satisfies Counter, Gauge and Histogram
type nop struct{}

func (nop) Inc()            {}
func (nop) Dec()            {}
func (nop) Add(float64)     {}
func (nop) Set(float64)     {}
func (nop) Observe(float64) {}

type nopFamily[M any] struct{ m M }

func (f nopFamily[M]) With(...string) M { return f.m }

func nopVec[M any](m M) Family[M] { return nopFamily[M]{m: m} }

// family adapts a prometheus *Vec lookup to Family
type family[M any] func(values ...string) M

func (f family[M]) With(values ...string) M { return f(values...) }

// Every series carries the instance and the cluster it belongs to
func constLabels() prometheus.Labels {
	return prometheus.Labels{
		"instance": cfg.InstanceLabel(),
		"cluster":  cfg.Config.Cluster.ID,
	}
}

func register[C prometheus.Collector](c C) C {
	registry.MustRegister(c)
	return c
}

func counter(name, help string) Counter {
	if registry == nil {
		return nop{}
	}
	return register(prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: name, Help: help, ConstLabels: constLabels(),
	}))
}

func gauge(name, help string) Gauge {
	if registry == nil {
		return nop{}
	}
	return register(prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: name, Help: help, ConstLabels: constLabels(),
	}))
}

func histogram(name, help string, buckets []float64) Histogram {
	if registry == nil {
		return nop{}
	}
	return register(prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Name: name, Help: help, Buckets: buckets, ConstLabels: constLabels(),
	}))
}

func counterVec(name, help string, labels ...string) CounterVec {
	if registry == nil {
		return nopVec[Counter](nop{})
	}
	v := register(prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: name, Help: help, ConstLabels: constLabels(),
	}, labels))
	return family[Counter](func(values ...string) Counter { return v.WithLabelValues(values...) })
}

func gaugeVec(name, help string, labels ...string) GaugeVec {
	if registry == nil {
		return nopVec[Gauge](nop{})
	}
	v := register(prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Name: name, Help: help, ConstLabels: constLabels(),
	}, labels))
	return family[Gauge](func(values ...string) Gauge { return v.WithLabelValues(values...) })
}

func histogramVec(name, help string, buckets []float64, labels ...string) HistogramVec {
	if registry == nil {
		return nopVec[Histogram](nop{})
	}
	v := register(prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: name, Help: help, Buckets: buckets, ConstLabels: constLabels(),
	}, labels))
	return family[Histogram](func(values ...string) Histogram { return v.WithLabelValues(values...) })
}

// Init creates the registry when Prometheus is enabled and builds every
// metric against it. With Prometheus disabled all metrics stay no-ops.
// Call once, after the configuration is loaded.
func Init() {
	if cfg.Config.Prometheus.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collectors.NewGoCollector(),
		)
		log.Info().Str("cluster", cfg.Config.Cluster.ID).Msg("Prometheus metrics enabled, served by the admin endpoint at /metrics")
	}
	initMetrics()
}

// Handler serves the registry, or returns nil when Prometheus is disabled
func Handler() http.Handler {
	if registry == nil {
		return nil
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}
