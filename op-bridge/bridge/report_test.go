package bridge

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/opbridge/opbridge/op-service/eth"
)

func TestReporterFinal(t *testing.T) {
	out := new(bytes.Buffer)
	r := NewReporter(out)
	require.False(t, IsTerminal(out))
	r.Final(Report{
		Direction: DirectionWithdrawal,
		Amount:    eth.Ether(1),
		Stage:     WithdrawalProveReverted,
		Outcome:   OutcomeReverted,
		Txs: []TxRecord{
			{Label: "L2 withdrawal", Chain: L2, Hash: common.HexToHash("0x02")},
			{Label: "L1 prove", Chain: L1, Hash: common.HexToHash("0x03")},
		},
		Message: MsgWithdrawalProveReverted,
	})
	s := out.String()
	require.True(t, bytes.HasPrefix(out.Bytes(), []byte(MsgWithdrawalProveReverted+"\n")), "no colour codes when not a terminal")
	require.Contains(t, s, "PROVE_REVERTED")
	require.Contains(t, s, "L1 prove tx")
	require.Contains(t, s, common.HexToHash("0x03").Hex())
	require.Contains(t, s, "1 ETH")
	require.NotContains(t, s, "Error")
}

func TestReporterFinalWithError(t *testing.T) {
	out := new(bytes.Buffer)
	NewReporter(out).Final(Report{
		Direction: DirectionDeposit,
		Stage:     DepositL1Submitted,
		Outcome:   OutcomeAborted,
		Message:   "Deposit aborted",
		Err:       errors.New("dial tcp: connection refused"),
	})
	require.Contains(t, out.String(), "connection refused")
}

func TestNilReporter(t *testing.T) {
	var r *Reporter
	r.Printf("ignored %d", 1)
	r.Final(Report{})
}

func TestChainLabel(t *testing.T) {
	require.Equal(t, "L1", L1.Label())
	require.Equal(t, "L2", L2.Label())
	require.Equal(t, "l3", Chain("l3").Label())
}

func TestRevertedError(t *testing.T) {
	err := error(&RevertedError{Stage: DepositL1Submitted, Chain: L1, TxHash: common.HexToHash("0x01")})
	require.ErrorIs(t, err, ErrTransactionReverted)
	var reverted *RevertedError
	require.True(t, errors.As(err, &reverted))
	require.Equal(t, L1, reverted.Chain)
	require.Contains(t, err.Error(), "L1_SUBMITTED")
}
