package web

import (
	"context"

	"github.com/franz/pjsk-record/internal/refdata"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "pjsk"

// Metrics holds the application's counters
type Metrics struct {
	Submissions  *prometheus.CounterVec
	AliasLookups *prometheus.CounterVec
	Refreshes    *prometheus.CounterVec
}

// NewMetrics registers the counters on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "submissions_total",
			Help:      "Record submissions and amendments by outcome.",
		}, []string{"kind", "outcome"}),
		AliasLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "alias_lookups_total",
			Help:      "Alias resolutions by outcome.",
		}, []string{"outcome"}),
		Refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reference_refreshes_total",
			Help:      "Reference data refresh runs by outcome.",
		}, []string{"outcome"}),
	}
}

type countingRefresher struct {
	next    refdata.Refresher
	metrics *Metrics
}

func (c countingRefresher) Refresh(ctx context.Context) error {
	err := c.next.Refresh(ctx)
	result := "ok"
	if err != nil {
		result = "failed"
	}
	c.metrics.Refreshes.WithLabelValues(result).Inc()
	return err
}

// InstrumentRefresher counts every refresh run of r
func (m *Metrics) InstrumentRefresher(r refdata.Refresher) refdata.Refresher {
	return countingRefresher{next: r, metrics: m}
}
