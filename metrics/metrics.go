package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type MetricsGenerator interface {
	IncSimulation(status string)
	IncAttempt(resolution string)

	SetEffectiveGasPrice(gwei float64)
	SetTargetBlock(block uint64)
}

// BundleMetrics contains instrumented metrics that should be incremented by the submitter using the methods below
type BundleMetrics struct {
	numSimulations *prometheus.CounterVec
	// a BlockPassedWithoutInclusion label climbing with no included means the bid is too low
	numAttempts *prometheus.CounterVec

	effectiveGasPrice prometheus.Gauge
	targetBlock       prometheus.Gauge
}

const bundleNamespace = "bundle"

func NewBundleMetrics(reg prometheus.Registerer) *BundleMetrics {
	return &BundleMetrics{
		numSimulations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: bundleNamespace,
				Name:      "num_simulations_total",
				Help:      "The number of relay simulations run for the bundle, by status",
			}, []string{"status"}),

		numAttempts: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: bundleNamespace,
				Name:      "num_attempts_total",
				Help:      "The number of times the bundle was sent to the relay, by resolution",
			}, []string{"resolution"}),

		effectiveGasPrice: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: bundleNamespace,
				Name:      "effective_gas_price_gwei",
				Help:      "Coinbase diff per gas unit of the latest simulation",
			}),

		targetBlock: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: bundleNamespace,
				Name:      "target_block",
				Help:      "The block the latest submission targets",
			}),
	}
}

func (m *BundleMetrics) IncSimulation(status string) {
	m.numSimulations.WithLabelValues(status).Inc()
}

func (m *BundleMetrics) IncAttempt(resolution string) {
	m.numAttempts.WithLabelValues(resolution).Inc()
}

func (m *BundleMetrics) SetEffectiveGasPrice(gwei float64) {
	m.effectiveGasPrice.Set(gwei)
}

func (m *BundleMetrics) SetTargetBlock(block uint64) {
	m.targetBlock.Set(float64(block))
}

type NoopMetrics struct{}

func (NoopMetrics) IncSimulation(string)         {}
func (NoopMetrics) IncAttempt(string)            {}
func (NoopMetrics) SetEffectiveGasPrice(float64) {}
func (NoopMetrics) SetTargetBlock(uint64)        {}
