package metrics

import (
	"time"

	"github.com/opbridge/opbridge/op-service/eth"
	opmetrics "github.com/opbridge/opbridge/op-service/metrics"
	txmetrics "github.com/opbridge/opbridge/op-service/txmgr/metrics"
)

type noopMetrics struct {
	opmetrics.NoopRPCMetrics
}

var NoopMetrics Metricer = new(noopMetrics)

func (*noopMetrics) RecordInfo(version string) {}
func (*noopMetrics) RecordUp()                 {}

func (*noopMetrics) TxMetrics(chain string) txmetrics.TxMetricer {
	return &txmetrics.NoopTxMetrics{}
}

func (*noopMetrics) RecordBalance(string, eth.ETH)                     {}
func (*noopMetrics) RecordStage(string, string)                        {}
func (*noopMetrics) RecordStageDuration(string, string, time.Duration) {}
func (*noopMetrics) RecordOutcome(string, string)                      {}
