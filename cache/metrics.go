package cache

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	events        *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	revalidating  prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	events, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rawrcache",
		Name:      "events_total",
		Help:      "Cache state transitions by cache label and event.",
	}, []string{"cache", "event"}))
	if err != nil {
		return nil, err
	}

	fetchDuration, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rawrcache",
		Name:      "fetch_duration_seconds",
		Help:      "Duration of upstream fetches by cache label and outcome.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"cache", "outcome"}))
	if err != nil {
		return nil, err
	}

	revalidating, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "rawrcache",
		Name:      "revalidations_in_flight",
		Help:      "Background revalidations currently running in this process.",
	}))
	if err != nil {
		return nil, err
	}

	return &metrics{
		events:        events,
		fetchDuration: fetchDuration,
		revalidating:  revalidating,
	}, nil
}

// register registers c, reusing an identical collector that is already
// registered so that several caches can share one registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *metrics) observeFetch(label string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.fetchDuration.WithLabelValues(label, outcome).Observe(d.Seconds())
}
