package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EngineCollector exposes primary-link engine outcomes as Prometheus metrics.
// It satisfies core.MetricsRecorder; a nil collector records nothing.
type EngineCollector struct {
	gatherer prometheus.Gatherer

	Allocations       *prometheus.CounterVec
	Deferrals         prometheus.Counter
	Migrations        *prometheus.CounterVec
	SelectionDuration prometheus.Histogram
	MLPeers           *prometheus.GaugeVec
	OrdinaryPeers     *prometheus.GaugeVec
}

// NewEngineCollector registers the engine metrics against reg, or against
// the global registry when reg is nil. Metrics that are already registered
// with a matching type are reused.
func NewEngineCollector(reg prometheus.Registerer) (*EngineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	allocations, err := register(reg, "primary_allocations_total", prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "primary_allocations_total",
		Help: "Primary PSOC assignments, labeled by the policy that decided them.",
	}, []string{"policy"}))
	if err != nil {
		return nil, err
	}
	deferrals, err := register(reg, "primary_deferrals_total", prometheus.NewCounter(prometheus.CounterOpts{
		Name: "primary_deferrals_total",
		Help: "Allocations that could not choose a primary PSOC yet.",
	}))
	if err != nil {
		return nil, err
	}
	migrations, err := register(reg, "primary_migrations_total", prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "primary_migrations_total",
		Help: "Primary migrations, labeled by result (migrated, noop, failed, aborted).",
	}, []string{"result"}))
	if err != nil {
		return nil, err
	}
	duration, err := register(reg, "primary_selection_duration_seconds", prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "primary_selection_duration_seconds",
		Help:    "Time spent choosing a primary PSOC, load scan included.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	}))
	if err != nil {
		return nil, err
	}
	mlPeers, err := register(reg, "psoc_multilink_peers", prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "psoc_multilink_peers",
		Help: "Multi-link peers whose queueing state a PSOC owns, as of the last load scan.",
	}, []string{"psoc"}))
	if err != nil {
		return nil, err
	}
	ordinary, err := register(reg, "psoc_ordinary_peers", prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "psoc_ordinary_peers",
		Help: "Single-link station peers on a PSOC, as of the last load scan.",
	}, []string{"psoc"}))
	if err != nil {
		return nil, err
	}

	return &EngineCollector{
		gatherer:          gatherer,
		Allocations:       allocations,
		Deferrals:         deferrals,
		Migrations:        migrations,
		SelectionDuration: duration,
		MLPeers:           mlPeers,
		OrdinaryPeers:     ordinary,
	}, nil
}

// RecordAllocation counts one AllocatePrimary outcome.
func (c *EngineCollector) RecordAllocation(policy string, deferred bool, elapsed time.Duration) {
	if c == nil {
		return
	}
	if deferred {
		c.Deferrals.Inc()
	} else {
		c.Allocations.WithLabelValues(policy).Inc()
	}
	c.SelectionDuration.Observe(elapsed.Seconds())
}

// RecordMigration counts one migration outcome.
func (c *EngineCollector) RecordMigration(result string) {
	if c == nil {
		return
	}
	c.Migrations.WithLabelValues(result).Inc()
}

// SetPSOCLoad publishes the load of one PSOC.
func (c *EngineCollector) SetPSOCLoad(psoc int, mlPeers, ordinaryPeers int) {
	if c == nil {
		return
	}
	label := strconv.Itoa(psoc)
	c.MLPeers.WithLabelValues(label).Set(float64(mlPeers))
	c.OrdinaryPeers.WithLabelValues(label).Set(float64(ordinaryPeers))
}

// Gatherer returns the gatherer the collector registered with.
func (c *EngineCollector) Gatherer() prometheus.Gatherer {
	if c == nil || c.gatherer == nil {
		return prometheus.DefaultGatherer
	}
	return c.gatherer
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *EngineCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.Gatherer(), promhttp.HandlerOpts{})
}

// register adds col to reg. When a collector of the same name is already
// registered it is returned instead, provided it has the same type.
func register[T prometheus.Collector](reg prometheus.Registerer, name string, col T) (T, error) {
	if err := reg.Register(col); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return col, err
		}
		existing, ok := are.ExistingCollector.(T)
		if !ok {
			return col, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return existing, nil
	}
	return col, nil
}
