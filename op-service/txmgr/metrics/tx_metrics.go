package metrics

import (
	"math/big"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"

	"github.com/opbridge/opbridge/op-service/metrics"
)

type TxMetricer interface {
	RecordNonce(nonce uint64)
	RecordTxConfirmationLatency(latency int64)
	TxConfirmed(*types.Receipt)
	TxPublished()
	RecordBaseFee(*big.Int)
	RecordTipCap(*big.Int)
	RPCError()
}

// TxMetrics are the transaction metrics of one chain, labelled by the chain name.
type TxMetrics struct {
	name             string
	currentNonce     *prometheus.GaugeVec
	txFeeGwei        *prometheus.GaugeVec
	txGasUsed        *prometheus.GaugeVec
	txConfirmLatency *prometheus.GaugeVec
	txPublishedCount *prometheus.CounterVec
	txConfirmedCount *prometheus.CounterVec
	txRevertedCount  *prometheus.CounterVec
	basefee          *prometheus.GaugeVec
	tipcap           *prometheus.GaugeVec
	rpcError         *prometheus.CounterVec
}

const SubsystemName = "txmgr"

// MakeTxMetrics creates the txmgr metrics, labelled by chain. Use ForChain to pick the label.
func MakeTxMetrics(ns string, factory metrics.Factory) TxMetrics {
	labels := []string{"chain"}
	return TxMetrics{
		currentNonce: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "current_nonce",
			Help:      "Current nonce of the from address",
			Subsystem: SubsystemName,
		}, labels),
		txFeeGwei: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "tx_fee_gwei",
			Help:      "Fee paid for the last confirmed transaction, in GWei",
			Subsystem: SubsystemName,
		}, labels),
		txGasUsed: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "tx_gas_used",
			Help:      "Gas used by the last confirmed transaction",
			Subsystem: SubsystemName,
		}, labels),
		txConfirmLatency: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "tx_confirm_latency_ms",
			Help:      "Latency of a confirmed transaction in milliseconds",
			Subsystem: SubsystemName,
		}, labels),
		txPublishedCount: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "tx_published_count",
			Help:      "Count of transactions published",
			Subsystem: SubsystemName,
		}, labels),
		txConfirmedCount: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "tx_confirmed_count",
			Help:      "Count of transactions confirmed",
			Subsystem: SubsystemName,
		}, labels),
		txRevertedCount: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "tx_reverted_count",
			Help:      "Count of confirmed transactions with a failed status",
			Subsystem: SubsystemName,
		}, labels),
		basefee: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "basefee_wei",
			Help:      "Latest base fee (in Wei)",
			Subsystem: SubsystemName,
		}, labels),
		tipcap: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "tipcap_wei",
			Help:      "Latest tip cap (in Wei)",
			Subsystem: SubsystemName,
		}, labels),
		rpcError: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "rpc_error_count",
			Help:      "Temporary: Count of RPC errors (like timeouts) that have occurred",
			Subsystem: SubsystemName,
		}, labels),
	}
}

// ForChain returns the metrics recording under the given chain label.
func (t TxMetrics) ForChain(name string) *TxMetrics {
	t.name = name
	return &t
}

var _ TxMetricer = (*TxMetrics)(nil)

func (t *TxMetrics) RecordNonce(nonce uint64) {
	t.currentNonce.WithLabelValues(t.name).Set(float64(nonce))
}

func (t *TxMetrics) RecordTxConfirmationLatency(latency int64) {
	t.txConfirmLatency.WithLabelValues(t.name).Set(float64(latency))
}

// TxConfirmed records the fee, gas and outcome of a mined transaction.
func (t *TxMetrics) TxConfirmed(receipt *types.Receipt) {
	if receipt.EffectiveGasPrice != nil {
		fee := new(big.Int).Mul(receipt.EffectiveGasPrice, new(big.Int).SetUint64(receipt.GasUsed))
		feeGwei, _ := new(big.Float).Quo(new(big.Float).SetInt(fee), big.NewFloat(params.GWei)).Float64()
		t.txFeeGwei.WithLabelValues(t.name).Set(feeGwei)
	}
	t.txConfirmedCount.WithLabelValues(t.name).Inc()
	if receipt.Status == types.ReceiptStatusFailed {
		t.txRevertedCount.WithLabelValues(t.name).Inc()
	}
	t.txGasUsed.WithLabelValues(t.name).Set(float64(receipt.GasUsed))
}

func (t *TxMetrics) TxPublished() {
	t.txPublishedCount.WithLabelValues(t.name).Inc()
}

func (t *TxMetrics) RecordBaseFee(baseFee *big.Int) {
	bff, _ := baseFee.Float64()
	t.basefee.WithLabelValues(t.name).Set(bff)
}

func (t *TxMetrics) RecordTipCap(tipcap *big.Int) {
	tcf, _ := tipcap.Float64()
	t.tipcap.WithLabelValues(t.name).Set(tcf)
}

func (t *TxMetrics) RPCError() {
	t.rpcError.WithLabelValues(t.name).Inc()
}
