package execution

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the per-node collectors of an executor.
type Metrics struct {
	operations     *prometheus.CounterVec
	commits        *prometheus.CounterVec
	commitDuration *prometheus.HistogramVec
	barriers       *prometheus.CounterVec
	emitted        *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg. Collectors
// already registered by an earlier executor are reused. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kflow",
			Subsystem: "node",
			Name:      "operations_total",
			Help:      "Operations processed or emitted by a node",
		}, []string{"node"}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kflow",
			Subsystem: "node",
			Name:      "commits_total",
			Help:      "Checkpoint commits of a node",
		}, []string{"node"}),
		commitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kflow",
			Subsystem: "node",
			Name:      "commit_duration_seconds",
			Help:      "Duration of a node's checkpoint commit",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"node"}),
		barriers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kflow",
			Subsystem: "node",
			Name:      "barriers_forwarded_total",
			Help:      "Checkpoint barriers sent downstream by a node",
		}, []string{"node"}),
		emitted: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "kflow",
			Subsystem: "source",
			Name:      "emitted_offset",
			Help:      "Last offset committed by a source",
		}, []string{"node"}),
	}
	if reg == nil {
		return m, nil
	}

	var err error
	if m.operations, err = register(reg, m.operations); err != nil {
		return nil, err
	}
	if m.commits, err = register(reg, m.commits); err != nil {
		return nil, err
	}
	if m.commitDuration, err = register(reg, m.commitDuration); err != nil {
		return nil, err
	}
	if m.barriers, err = register(reg, m.barriers); err != nil {
		return nil, err
	}
	if m.emitted, err = register(reg, m.emitted); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, err
}

// nodeMetrics are the collectors of one node, curried by its label.
type nodeMetrics struct {
	operations     prometheus.Counter
	commits        prometheus.Counter
	commitDuration prometheus.Observer
	barriers       prometheus.Counter
	emitted        prometheus.Gauge
}

func (m *Metrics) forNode(node string) nodeMetrics {
	return nodeMetrics{
		operations:     m.operations.WithLabelValues(node),
		commits:        m.commits.WithLabelValues(node),
		commitDuration: m.commitDuration.WithLabelValues(node),
		barriers:       m.barriers.WithLabelValues(node),
		emitted:        m.emitted.WithLabelValues(node),
	}
}
