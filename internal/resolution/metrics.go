// metrics.go - Prometheus counters for resolution outcomes

package resolution

import (
	"time"

	"github.com/bosocmputer/invoice_resolver/internal/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the engine's collectors
type Metrics struct {
	Outcomes       *prometheus.CounterVec
	AliasConflicts *prometheus.CounterVec
	Duration       *prometheus.HistogramVec
}

// NewMetrics registers the collectors with reg; nil reg leaves them unregistered
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Outcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resolution_outcomes_total",
				Help: "Resolution results by entity kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		AliasConflicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resolution_alias_conflicts_total",
				Help: "Alias writes rejected because the alias points to another entity",
			},
			[]string{"kind"},
		),
		Duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "resolution_duration_seconds",
				Help:    "Time spent resolving one name",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"kind"},
		),
	}
}

func (m *Metrics) observe(kind common.EntityKind, outcome Outcome, started time.Time) {
	m.Outcomes.WithLabelValues(kind.String(), string(outcome)).Inc()
	m.Duration.WithLabelValues(kind.String()).Observe(time.Since(started).Seconds())
}

func (m *Metrics) conflict(kind common.EntityKind) {
	m.AliasConflicts.WithLabelValues(kind.String()).Inc()
}
