package bridge

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/opbridge/opbridge/op-service/testlog"
)

var testAccount = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

func runDeposit(t *testing.T, client *fakeClient, input string) (Report, *recordingMetrics, string, error) {
	amount, err := ParseAmount(input)
	require.NoError(t, err)
	m := new(recordingMetrics)
	out := new(bytes.Buffer)
	d := NewDepositOrchestrator(TransferConfig{Account: testAccount, Amount: amount}, client,
		testlog.Logger(t, slog.LevelDebug), m, NewReporter(out))
	report, err := d.Run(context.Background())
	return report, m, out.String(), err
}

func TestDepositCompletes(t *testing.T) {
	client := newFakeClient()
	report, m, out, err := runDeposit(t, client, "0.05")
	require.NoError(t, err)
	require.Equal(t, DepositL2Confirmed, report.Stage)
	require.Equal(t, OutcomeSuccess, report.Outcome)
	require.True(t, report.Succeeded())
	require.Equal(t, MsgDepositCompleted, report.Message)

	require.Len(t, client.submitted, 1, "only one L1 transaction")
	require.Equal(t, L1, client.submitted[0].Chain)
	require.Equal(t, "0.05", client.submitted[0].Value.EtherString())

	l2, ok := report.Tx("L2")
	require.True(t, ok)
	require.Equal(t, derivedL2Hash, l2)

	require.Contains(t, out, "L1 Balance: 5 ETH")
	require.Contains(t, out, "Deposit: 0.05 ETH")
	require.Contains(t, out, "L1 tx: "+depositTxHash.Hex())
	require.Contains(t, out, "L1 status: success")
	require.Contains(t, out, "L2 tx: "+derivedL2Hash.Hex())
	require.Contains(t, out, "L2 status: success")
	require.Contains(t, out, "Deposit completed successfully")

	require.Equal(t, []string{
		"deposit:VALIDATED", "deposit:L1_SUBMITTED", "deposit:L1_CONFIRMED",
		"deposit:L2_HASH_DERIVED", "deposit:L2_CONFIRMED",
	}, m.stages)
	require.Equal(t, []string{"deposit:success"}, m.outcomes)
	require.Equal(t, "5", m.balances["l1"].EtherString())
}

func TestDepositL1Reverted(t *testing.T) {
	client := newFakeClient()
	client.receipts[depositTxHash] = types.ReceiptStatusFailed
	report, _, out, err := runDeposit(t, client, "0.05")
	require.NoError(t, err)
	require.Equal(t, DepositL1Reverted, report.Stage)
	require.Equal(t, OutcomeReverted, report.Outcome)
	require.False(t, client.called("DeriveL2Hash"))
	require.Contains(t, out, "L1 status: reverted")
	require.Contains(t, report.Message, "smaller amount")
}

func TestDepositL2HashNotFound(t *testing.T) {
	client := newFakeClient()
	client.deriveErr = ErrDerivationNotFound
	report, m, _, err := runDeposit(t, client, "0.05")
	require.NoError(t, err)
	require.Equal(t, DepositL2HashNotFound, report.Stage)
	require.Equal(t, OutcomeIndeterminate, report.Outcome)
	require.Equal(t, MsgDepositHashNotFound, report.Message)
	require.Equal(t, []string{"deposit:indeterminate"}, m.outcomes)

	_, ok := report.Tx("L2")
	require.False(t, ok)
}

func TestDepositL2Failed(t *testing.T) {
	client := newFakeClient()
	client.receipts[derivedL2Hash] = types.ReceiptStatusFailed
	report, _, _, err := runDeposit(t, client, "0.05")
	require.NoError(t, err)
	require.Equal(t, DepositL2Failed, report.Stage)
	require.Equal(t, OutcomeReverted, report.Outcome)
	require.Equal(t, MsgDepositL2Failed, report.Message)
}

func TestDepositTransportError(t *testing.T) {
	client := newFakeClient()
	rpcErr := errors.New("connection refused")
	client.waitErr = rpcErr
	report, m, _, err := runDeposit(t, client, "0.05")
	require.ErrorIs(t, err, rpcErr)
	require.Equal(t, DepositL1Submitted, report.Stage)
	require.Equal(t, OutcomeAborted, report.Outcome)
	require.Contains(t, report.Message, "L1_SUBMITTED")
	require.Equal(t, []string{"deposit:aborted"}, m.outcomes)
}

func TestDepositDerivationError(t *testing.T) {
	client := newFakeClient()
	client.deriveErr = errors.New("malformed log")
	report, _, _, err := runDeposit(t, client, "0.05")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrDerivationNotFound)
	require.Equal(t, DepositL1Confirmed, report.Stage)
}
