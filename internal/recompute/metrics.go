package recompute

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Item outcomes recorded in the items counter.
const (
	OutcomeUpdated   = "updated"
	OutcomeUnchanged = "unchanged"
	OutcomeFailed    = "failed"
	OutcomeTimeout   = "timeout"
)

// Metrics holds the batch collectors. A nil *Metrics records nothing.
type Metrics struct {
	Items         *prometheus.CounterVec
	ItemDuration  prometheus.Histogram
	FallbackItems prometheus.Gauge
	LastRun       prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Items: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pedigree_recompute_items_total",
				Help: "Individuals processed by the batch recompute, by outcome",
			},
			[]string{"outcome"},
		),
		ItemDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pedigree_recompute_item_duration_seconds",
				Help:    "Wall-clock time to compute one individual's coefficient",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
		),
		FallbackItems: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pedigree_recompute_fallback_items",
				Help: "Individuals ordered by fallback in the last run",
			},
		),
		LastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pedigree_recompute_last_run_timestamp_seconds",
				Help: "Unix time the last batch recompute finished",
			},
		),
	}
	for _, c := range []prometheus.Collector{m.Items, m.ItemDuration, m.FallbackItems, m.LastRun} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeItem(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Items.WithLabelValues(outcome).Inc()
	m.ItemDuration.Observe(d.Seconds())
}

func (m *Metrics) observeRun(fallback int, finished time.Time) {
	if m == nil {
		return
	}
	m.FallbackItems.Set(float64(fallback))
	m.LastRun.Set(float64(finished.Unix()))
}
