package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/opbridge/opbridge/op-service/eth"
	opmetrics "github.com/opbridge/opbridge/op-service/metrics"
	txmetrics "github.com/opbridge/opbridge/op-service/txmgr/metrics"
)

const Namespace = "op_bridge"

var _ opmetrics.RegistryMetricer = (*Metrics)(nil)

type Metricer interface {
	RecordInfo(version string)
	RecordUp()

	opmetrics.RPCMetricer

	TxMetrics(chain string) txmetrics.TxMetricer

	RecordBalance(chain string, balance eth.ETH)
	RecordStage(direction string, stage string)
	RecordStageDuration(direction string, stage string, d time.Duration)
	RecordOutcome(direction string, outcome string)
}

type Metrics struct {
	ns       string
	registry *prometheus.Registry
	factory  opmetrics.Factory

	opmetrics.RPCMetrics
	txMetrics txmetrics.TxMetrics

	info          prometheus.GaugeVec
	up            prometheus.Gauge
	balance       prometheus.GaugeVec
	stages        prometheus.CounterVec
	stageDuration prometheus.HistogramVec
	outcomes      prometheus.CounterVec
}

var _ Metricer = (*Metrics)(nil)

func NewMetrics(procName string) *Metrics {
	if procName == "" {
		procName = "default"
	}
	ns := Namespace + "_" + procName

	registry := opmetrics.NewRegistry()
	factory := opmetrics.With(registry)

	return &Metrics{
		ns:       ns,
		registry: registry,
		factory:  factory,

		RPCMetrics: opmetrics.MakeRPCMetrics(ns, factory),
		txMetrics:  txmetrics.MakeTxMetrics(ns, factory),

		info: *factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "info",
			Help:      "Information about the bridge",
		}, []string{
			"version",
		}),
		up: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "up",
			Help:      "1 if the op-bridge has finished starting up",
		}),
		balance: *factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "balance_eth",
			Help:      "Last observed balance of the account, in ETH",
		}, []string{
			"chain",
		}),
		stages: *factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "stages_total",
			Help:      "Stages reached by transfers",
		}, []string{
			"direction",
			"stage",
		}),
		stageDuration: *factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in a stage before moving to the next",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 3600, 4 * 3600, 24 * 3600, 7 * 24 * 3600},
		}, []string{
			"direction",
			"stage",
		}),
		outcomes: *factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "outcomes_total",
			Help:      "Terminal outcomes of transfers",
		}, []string{
			"direction",
			"outcome",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordInfo(version string) {
	m.info.WithLabelValues(version).Set(1)
}

func (m *Metrics) RecordUp() {
	m.up.Set(1)
}

func (m *Metrics) TxMetrics(chain string) txmetrics.TxMetricer {
	return m.txMetrics.ForChain(chain)
}

func (m *Metrics) RecordBalance(chain string, balance eth.ETH) {
	m.balance.WithLabelValues(chain).Set(balance.EtherFloat())
}

func (m *Metrics) RecordStage(direction string, stage string) {
	m.stages.WithLabelValues(direction, stage).Inc()
}

func (m *Metrics) RecordStageDuration(direction string, stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(direction, stage).Observe(d.Seconds())
}

func (m *Metrics) RecordOutcome(direction string, outcome string) {
	m.outcomes.WithLabelValues(direction, outcome).Inc()
}

func (m *Metrics) Document() []opmetrics.DocumentedMetric {
	return m.factory.Document()
}
