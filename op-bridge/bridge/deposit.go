package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/opbridge/opbridge/op-service/eth"
)

const (
	DepositValidated      Stage = "VALIDATED"
	DepositL1Submitted    Stage = "L1_SUBMITTED"
	DepositL1Confirmed    Stage = "L1_CONFIRMED"
	DepositL2HashDerived  Stage = "L2_HASH_DERIVED"
	DepositL2Confirmed    Stage = "L2_CONFIRMED"
	DepositL2Failed       Stage = "L2_FAILED"
	DepositL1Reverted     Stage = "L1_REVERTED"
	DepositL2HashNotFound Stage = "L2_HASH_NOT_FOUND"
)

const (
	MsgDepositCompleted    = "Deposit completed successfully"
	MsgDepositL1Reverted   = "Deposit reverted on L1. Try a smaller amount (> %s ETH and <= %s ETH) and retry."
	MsgDepositHashNotFound = "L2 transaction hash not found in the L1 receipt. Retry the lookup later, do not resubmit the deposit."
	MsgDepositL2Failed     = "Deposit was not successful on L2."
)

// TransferConfig is the per-run input of an orchestrator.
type TransferConfig struct {
	// Account sends on one chain and receives on the other.
	Account common.Address
	// Amount must come from ParseAmount.
	Amount eth.ETH
}

// DepositOrchestrator moves Amount from L1 to L2 with a single L1 transaction.
type DepositOrchestrator struct {
	cfg      TransferConfig
	client   ChainClient
	log      log.Logger
	metr     Metricer
	reporter *Reporter

	l1Receipt *types.Receipt
	l2Hash    common.Hash
	txs       []TxRecord
}

func NewDepositOrchestrator(cfg TransferConfig, client ChainClient, l log.Logger, m Metricer, r *Reporter) *DepositOrchestrator {
	return &DepositOrchestrator{
		cfg:      cfg,
		client:   client,
		log:      l.New("direction", DirectionDeposit),
		metr:     m,
		reporter: r,
	}
}

// Run drives the deposit to a terminal stage. Reverts and a missing L2 hash are reported,
// not returned as errors.
func (d *DepositOrchestrator) Run(ctx context.Context) (Report, error) {
	m := NewMachine(DirectionDeposit, d.log, d.metr, DepositValidated,
		DepositL2Confirmed, DepositL2Failed, DepositL1Reverted, DepositL2HashNotFound)
	m.On(DepositValidated, d.submitL1).
		On(DepositL1Submitted, d.awaitL1).
		On(DepositL1Confirmed, d.deriveL2Hash).
		On(DepositL2HashDerived, d.awaitL2)

	err := m.Run(ctx)
	report := Report{
		Direction: DirectionDeposit,
		Amount:    d.cfg.Amount,
		Stage:     m.Stage(),
		Txs:       d.txs,
		Err:       err,
	}
	if err != nil {
		report.Outcome = OutcomeAborted
		report.Message = fmt.Sprintf("Deposit aborted at stage %s: %v", m.Stage(), err)
	} else {
		report.Outcome, report.Message = d.conclude(m.Stage())
	}
	d.metr.RecordOutcome(string(DirectionDeposit), string(report.Outcome))
	d.reporter.Final(report)
	return report, err
}

func (d *DepositOrchestrator) conclude(s Stage) (Outcome, string) {
	switch s {
	case DepositL2Confirmed:
		return OutcomeSuccess, MsgDepositCompleted
	case DepositL1Reverted:
		return OutcomeReverted, fmt.Sprintf(MsgDepositL1Reverted, MinAmount.EtherString(), MaxAmount.EtherString())
	case DepositL2HashNotFound:
		return OutcomeIndeterminate, MsgDepositHashNotFound
	default:
		return OutcomeReverted, MsgDepositL2Failed
	}
}

func (d *DepositOrchestrator) submitL1(ctx context.Context) (Stage, error) {
	balance, err := d.client.Balance(ctx, L1, d.cfg.Account)
	if err != nil {
		return "", fmt.Errorf("failed to query L1 balance: %w", err)
	}
	d.metr.RecordBalance(string(L1), balance)
	d.reporter.Balance(L1, balance)
	d.reporter.Printf("Deposit: %s", d.cfg.Amount)

	req, err := d.client.BuildDeposit(ctx, d.cfg.Account, d.cfg.Amount)
	if err != nil {
		return "", fmt.Errorf("failed to build deposit: %w", err)
	}
	hash, err := d.client.Submit(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to submit deposit: %w", err)
	}
	d.txs = append(d.txs, TxRecord{Label: "L1", Chain: L1, Hash: hash})
	d.reporter.Tx("L1", hash)
	d.log.Info("Submitted deposit", "tx", hash, "amount", d.cfg.Amount)
	return DepositL1Submitted, nil
}

func (d *DepositOrchestrator) awaitL1(ctx context.Context) (Stage, error) {
	hash := d.txs[len(d.txs)-1].Hash
	receipt, err := d.client.WaitForReceipt(ctx, L1, hash)
	if err != nil {
		return "", fmt.Errorf("failed to wait for L1 receipt: %w", err)
	}
	d.reporter.Status("L1", receipt)
	if receipt.Status != types.ReceiptStatusSuccessful {
		d.log.Warn("Deposit reverted", "err", &RevertedError{Stage: DepositL1Submitted, Chain: L1, TxHash: hash})
		return DepositL1Reverted, nil
	}
	d.l1Receipt = receipt
	return DepositL1Confirmed, nil
}

func (d *DepositOrchestrator) deriveL2Hash(ctx context.Context) (Stage, error) {
	hash, err := d.client.DeriveL2Hash(d.l1Receipt)
	if errors.Is(err, ErrDerivationNotFound) {
		d.log.Warn("No deposit found in L1 receipt", "tx", d.l1Receipt.TxHash)
		return DepositL2HashNotFound, nil
	} else if err != nil {
		return "", fmt.Errorf("failed to derive L2 transaction hash: %w", err)
	}
	d.l2Hash = hash
	d.txs = append(d.txs, TxRecord{Label: "L2", Chain: L2, Hash: hash})
	d.reporter.Tx("L2", hash)
	return DepositL2HashDerived, nil
}

func (d *DepositOrchestrator) awaitL2(ctx context.Context) (Stage, error) {
	receipt, err := d.client.WaitForReceipt(ctx, L2, d.l2Hash)
	if err != nil {
		return "", fmt.Errorf("failed to wait for L2 receipt: %w", err)
	}
	d.reporter.Status("L2", receipt)
	if receipt.Status != types.ReceiptStatusSuccessful {
		return DepositL2Failed, nil
	}
	return DepositL2Confirmed, nil
}
