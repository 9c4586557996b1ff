// Package metrics exposes Prometheus counters and histograms for the
// authorization pipeline: liveness outcomes, payment outcomes, and
// per-frame and per-payment handling latency.
//
// Built around an own-registry + promhttp.Handler shape; there's no
// external hardware to poll here, so this is counter/histogram driven
// from the request path rather than a polling loop.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	registry *prometheus.Registry

	LivenessOutcomes *prometheus.CounterVec
	PaymentOutcomes  *prometheus.CounterVec
	FrameLatency     prometheus.Histogram
	PayLatency       prometheus.Histogram
}

func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{registry: reg}

	r.LivenessOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "canteen_liveness_outcomes_total",
		Help: "Liveness session outcomes by terminal status.",
	}, []string{"status", "reason_code"})
	reg.MustRegister(r.LivenessOutcomes)

	r.PaymentOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "canteen_payment_outcomes_total",
		Help: "Payment authorization outcomes.",
	}, []string{"status", "decline_code"})
	reg.MustRegister(r.PaymentOutcomes)

	r.FrameLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "canteen_liveness_frame_seconds",
		Help:    "Time to process a single liveness frame.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(r.FrameLatency)

	r.PayLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "canteen_pay_seconds",
		Help:    "Time to process a payment authorization.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(r.PayLatency)

	return r
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
