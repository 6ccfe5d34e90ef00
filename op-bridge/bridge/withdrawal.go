package bridge

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/opbridge/opbridge/op-service/eth"
)

const (
	// WithdrawalValidated shares the deposit entry stage, both start once the amount is parsed.
	WithdrawalValidated           Stage = "VALIDATED"
	WithdrawalBalanceChecked      Stage = "BALANCE_CHECKED"
	WithdrawalL2Submitted         Stage = "L2_SUBMITTED"
	WithdrawalL2Confirmed         Stage = "L2_CONFIRMED"
	WithdrawalProvable            Stage = "PROVABLE"
	WithdrawalL1Proven            Stage = "L1_PROVEN"
	WithdrawalChallengeElapsed    Stage = "CHALLENGE_ELAPSED"
	WithdrawalL1Finalized         Stage = "L1_FINALIZED"
	WithdrawalInsufficientBalance Stage = "INSUFFICIENT_BALANCE"
	WithdrawalL2Reverted          Stage = "L2_REVERTED"
	WithdrawalProveReverted       Stage = "PROVE_REVERTED"
	WithdrawalFinalizeFailed      Stage = "FINALIZE_FAILED"
)

const (
	MsgWithdrawalCompleted      = "Withdrawal completed successfully"
	MsgWithdrawalL2Reverted     = "Withdrawal reverted on L2. Try reducing the amount and retry."
	MsgWithdrawalProveReverted  = "Prove step reverted on L1. Retry later."
	MsgWithdrawalFinalizeFailed = "Finalize step failed on L1."
)

// WithdrawalOrchestrator moves Amount from L2 to L1: initiate on L2, prove and finalize on L1.
type WithdrawalOrchestrator struct {
	cfg      TransferConfig
	client   ChainClient
	log      log.Logger
	metr     Metricer
	reporter *Reporter

	l2Balance  eth.ETH
	l2Hash     common.Hash
	l2Receipt  *types.Receipt
	proof      OutputProof
	withdrawal Withdrawal
	txs        []TxRecord
}

func NewWithdrawalOrchestrator(cfg TransferConfig, client ChainClient, l log.Logger, m Metricer, r *Reporter) *WithdrawalOrchestrator {
	return &WithdrawalOrchestrator{
		cfg:      cfg,
		client:   client,
		log:      l.New("direction", DirectionWithdrawal),
		metr:     m,
		reporter: r,
	}
}

// Run drives the withdrawal to a terminal stage. An insufficient L2 balance is returned as
// ErrInsufficientBalance, reverts are reported without an error.
func (w *WithdrawalOrchestrator) Run(ctx context.Context) (Report, error) {
	m := NewMachine(DirectionWithdrawal, w.log, w.metr, WithdrawalValidated,
		WithdrawalL1Finalized, WithdrawalInsufficientBalance, WithdrawalL2Reverted,
		WithdrawalProveReverted, WithdrawalFinalizeFailed)
	m.On(WithdrawalValidated, w.checkBalance).
		On(WithdrawalBalanceChecked, w.submitL2).
		On(WithdrawalL2Submitted, w.awaitL2).
		On(WithdrawalL2Confirmed, w.awaitProvable).
		On(WithdrawalProvable, w.prove).
		On(WithdrawalL1Proven, w.awaitChallenge).
		On(WithdrawalChallengeElapsed, w.finalize)

	err := m.Run(ctx)
	if err == nil && m.Stage() == WithdrawalInsufficientBalance {
		err = fmt.Errorf("%w: need %s, have %s on L2", ErrInsufficientBalance, w.cfg.Amount, w.l2Balance)
	}
	report := Report{
		Direction: DirectionWithdrawal,
		Amount:    w.cfg.Amount,
		Stage:     m.Stage(),
		Txs:       w.txs,
		Err:       err,
	}
	if err != nil {
		report.Outcome = OutcomeAborted
		report.Message = fmt.Sprintf("Withdrawal aborted at stage %s: %v", m.Stage(), err)
	} else {
		report.Outcome, report.Message = w.conclude(m.Stage())
	}
	w.metr.RecordOutcome(string(DirectionWithdrawal), string(report.Outcome))
	w.reporter.Final(report)
	return report, err
}

func (w *WithdrawalOrchestrator) conclude(s Stage) (Outcome, string) {
	switch s {
	case WithdrawalL1Finalized:
		return OutcomeSuccess, MsgWithdrawalCompleted
	case WithdrawalL2Reverted:
		return OutcomeReverted, MsgWithdrawalL2Reverted
	case WithdrawalProveReverted:
		return OutcomeReverted, MsgWithdrawalProveReverted
	default:
		return OutcomeReverted, MsgWithdrawalFinalizeFailed
	}
}

func (w *WithdrawalOrchestrator) checkBalance(ctx context.Context) (Stage, error) {
	balance, err := w.client.Balance(ctx, L2, w.cfg.Account)
	if err != nil {
		return "", fmt.Errorf("failed to query L2 balance: %w", err)
	}
	w.l2Balance = balance
	w.metr.RecordBalance(string(L2), balance)
	w.reporter.Balance(L2, balance)
	w.reporter.Printf("Withdraw request: %s", w.cfg.Amount)
	if balance.Lt(w.cfg.Amount) {
		w.log.Warn("Insufficient L2 balance", "need", w.cfg.Amount, "have", balance)
		return WithdrawalInsufficientBalance, nil
	}
	return WithdrawalBalanceChecked, nil
}

func (w *WithdrawalOrchestrator) submitL2(ctx context.Context) (Stage, error) {
	req, err := w.client.BuildWithdrawalInit(ctx, w.cfg.Account, w.cfg.Amount)
	if err != nil {
		return "", fmt.Errorf("failed to build withdrawal: %w", err)
	}
	hash, err := w.client.Submit(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to submit withdrawal: %w", err)
	}
	w.l2Hash = hash
	w.txs = append(w.txs, TxRecord{Label: "L2 withdrawal", Chain: L2, Hash: hash})
	w.reporter.Tx("L2 withdrawal", hash)
	w.log.Info("Initiated withdrawal", "tx", hash, "amount", w.cfg.Amount)
	return WithdrawalL2Submitted, nil
}

func (w *WithdrawalOrchestrator) awaitL2(ctx context.Context) (Stage, error) {
	receipt, err := w.client.WaitForReceipt(ctx, L2, w.l2Hash)
	if err != nil {
		return "", fmt.Errorf("failed to wait for L2 receipt: %w", err)
	}
	w.reporter.Status("L2", receipt)
	if receipt.Status != types.ReceiptStatusSuccessful {
		w.log.Warn("Withdrawal reverted", "err", &RevertedError{Stage: WithdrawalL2Submitted, Chain: L2, TxHash: w.l2Hash})
		return WithdrawalL2Reverted, nil
	}
	w.l2Receipt = receipt
	return WithdrawalL2Confirmed, nil
}

func (w *WithdrawalOrchestrator) awaitProvable(ctx context.Context) (Stage, error) {
	w.reporter.Printf("Waiting until the withdrawal is proveable on L1...")
	proof, withdrawal, err := w.client.WaitUntilProvable(ctx, w.l2Receipt)
	if err != nil {
		return "", fmt.Errorf("failed to wait for provable withdrawal: %w", err)
	}
	w.proof = proof
	w.withdrawal = withdrawal
	w.log.Info("Withdrawal is provable", "withdrawal", withdrawal.Hash, "l2_block", proof.L2BlockNumber, "index", proof.Index)
	return WithdrawalProvable, nil
}

func (w *WithdrawalOrchestrator) prove(ctx context.Context) (Stage, error) {
	req, err := w.client.BuildProve(ctx, w.proof, w.withdrawal)
	if err != nil {
		return "", fmt.Errorf("failed to build prove: %w", err)
	}
	hash, err := w.client.Submit(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to submit prove: %w", err)
	}
	w.txs = append(w.txs, TxRecord{Label: "L1 prove", Chain: L1, Hash: hash})
	w.reporter.Tx("L1 prove", hash)
	receipt, err := w.client.WaitForReceipt(ctx, L1, hash)
	if err != nil {
		return "", fmt.Errorf("failed to wait for prove receipt: %w", err)
	}
	w.reporter.Status("L1 prove", receipt)
	if receipt.Status != types.ReceiptStatusSuccessful {
		w.log.Warn("Prove reverted", "err", &RevertedError{Stage: WithdrawalProvable, Chain: L1, TxHash: hash})
		return WithdrawalProveReverted, nil
	}
	return WithdrawalL1Proven, nil
}

func (w *WithdrawalOrchestrator) awaitChallenge(ctx context.Context) (Stage, error) {
	w.reporter.Printf("Waiting for the challenge period to elapse...")
	if err := w.client.WaitUntilChallengeElapsed(ctx, w.withdrawal); err != nil {
		return "", fmt.Errorf("failed to wait for challenge period: %w", err)
	}
	return WithdrawalChallengeElapsed, nil
}

func (w *WithdrawalOrchestrator) finalize(ctx context.Context) (Stage, error) {
	hash, err := w.client.Finalize(ctx, w.withdrawal)
	if err != nil {
		return "", fmt.Errorf("failed to finalize: %w", err)
	}
	w.txs = append(w.txs, TxRecord{Label: "L1 finalize", Chain: L1, Hash: hash})
	w.reporter.Tx("L1 finalize", hash)
	receipt, err := w.client.WaitForReceipt(ctx, L1, hash)
	if err != nil {
		return "", fmt.Errorf("failed to wait for finalize receipt: %w", err)
	}
	w.reporter.Status("L1 finalize", receipt)
	if receipt.Status != types.ReceiptStatusSuccessful {
		w.log.Warn("Finalize failed", "err", &RevertedError{Stage: WithdrawalChallengeElapsed, Chain: L1, TxHash: hash})
		return WithdrawalFinalizeFailed, nil
	}
	return WithdrawalL1Finalized, nil
}
