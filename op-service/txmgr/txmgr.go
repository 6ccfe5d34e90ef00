package txmgr

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"

	"github.com/opbridge/opbridge/op-service/eth"
	"github.com/opbridge/opbridge/op-service/txmgr/metrics"
)

var (
	ErrMaxTipCapExceeded  = errors.New("tip cap exceeds the configured maximum")
	ErrMaxBaseFeeExceeded = errors.New("base fee exceeds the configured maximum")
)

// ETHBackend is the set of methods that the transaction manager uses to interact with a chain.
// *ethclient.Client satisfies it.
type ETHBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// SignerFn signs a transaction for the given address.
type SignerFn func(ctx context.Context, address common.Address, tx *types.Transaction) (*types.Transaction, error)

// PrivateKeySignerFn signs with a local key, for the given chain.
func PrivateKeySignerFn(key *ecdsa.PrivateKey, chainID *big.Int) SignerFn {
	signer := types.LatestSignerForChainID(chainID)
	from := crypto.PubkeyToAddress(key.PublicKey)
	return func(_ context.Context, address common.Address, tx *types.Transaction) (*types.Transaction, error) {
		if address != from {
			return nil, fmt.Errorf("not authorized to sign for %s", address)
		}
		return types.SignTx(tx, signer, key)
	}
}

type Config struct {
	Backend ETHBackend
	ChainID *big.Int
	Signer  SignerFn
	From    common.Address

	// NetworkTimeout bounds every single RPC call.
	NetworkTimeout time.Duration
	// ReceiptQueryInterval is the polling interval of receipts.
	ReceiptQueryInterval time.Duration
	// NumConfirmations is the number of blocks, including the inclusion block, a receipt must have.
	NumConfirmations uint64

	MinBaseFee *big.Int
	MaxBaseFee *big.Int // optional
	MinTipCap  *big.Int
	MaxTipCap  *big.Int // optional
}

// TxCandidate is a transaction to be signed and published.
type TxCandidate struct {
	// TxData is the transaction calldata to be used in the constructed tx.
	TxData []byte
	// To is the recipient of the constructed tx.
	To *common.Address
	// GasLimit is the gas limit to be used in the constructed tx. Estimated when 0.
	GasLimit uint64
	// Value is the value to be used in the constructed tx.
	Value *big.Int
}

// SimpleTxManager signs, publishes and tracks transactions on one chain.
// It does not bump fees or resubmit: each candidate is published exactly once.
type SimpleTxManager struct {
	cfg     *Config
	name    string
	backend ETHBackend
	l       log.Logger
	metr    metrics.TxMetricer
}

func NewSimpleTxManagerFromConfig(name string, l log.Logger, m metrics.TxMetricer, conf *Config) *SimpleTxManager {
	return &SimpleTxManager{
		cfg:     conf,
		name:    name,
		backend: conf.Backend,
		l:       l.New("service", name),
		metr:    m,
	}
}

func (m *SimpleTxManager) From() common.Address {
	return m.cfg.From
}

// Submit crafts, signs and publishes the candidate, returning the transaction hash.
func (m *SimpleTxManager) Submit(ctx context.Context, candidate TxCandidate) (common.Hash, error) {
	tx, err := m.craftTx(ctx, candidate)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to create the tx: %w", err)
	}
	l := m.l.New("tx", tx.Hash(), "nonce", tx.Nonce())

	cCtx, cancel := context.WithTimeout(ctx, m.cfg.NetworkTimeout)
	defer cancel()
	if err := m.backend.SendTransaction(cCtx, tx); err != nil {
		m.metr.RPCError()
		l.Warn("Failed to publish transaction", "err", err)
		return common.Hash{}, fmt.Errorf("failed to publish tx: %w", err)
	}
	m.metr.TxPublished()
	l.Info("Transaction successfully published", "gasTipCap", tx.GasTipCap(), "gasFeeCap", tx.GasFeeCap(), "gasLimit", tx.Gas())
	return tx.Hash(), nil
}

// craftTx creates the signed EIP-1559 transaction for the candidate.
func (m *SimpleTxManager) craftTx(ctx context.Context, candidate TxCandidate) (*types.Transaction, error) {
	gasTipCap, baseFee, err := m.SuggestGasPriceCaps(ctx)
	if err != nil {
		m.metr.RPCError()
		return nil, fmt.Errorf("failed to get gas price info: %w", err)
	}
	gasFeeCap := calcGasFeeCap(baseFee, gasTipCap)

	value := candidate.Value
	if value == nil {
		value = new(big.Int)
	}

	gasLimit := candidate.GasLimit
	if gasLimit == 0 {
		cCtx, cancel := context.WithTimeout(ctx, m.cfg.NetworkTimeout)
		defer cancel()
		gas, err := m.backend.EstimateGas(cCtx, ethereum.CallMsg{
			From:      m.cfg.From,
			To:        candidate.To,
			GasTipCap: gasTipCap,
			GasFeeCap: gasFeeCap,
			Data:      candidate.TxData,
			Value:     value,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to estimate gas: %w", err)
		}
		gasLimit = gas
	}

	cCtx, cancel := context.WithTimeout(ctx, m.cfg.NetworkTimeout)
	defer cancel()
	nonce, err := m.backend.PendingNonceAt(cCtx, m.cfg.From)
	if err != nil {
		m.metr.RPCError()
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	m.metr.RecordNonce(nonce)

	txMessage := &types.DynamicFeeTx{
		ChainID:   m.cfg.ChainID,
		Nonce:     nonce,
		To:        candidate.To,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       gasLimit,
		Value:     value,
		Data:      candidate.TxData,
	}
	m.l.Debug("Creating tx", "to", candidate.To, "from", m.cfg.From, "nonce", nonce, "gas", gasLimit)

	cCtx, cancel = context.WithTimeout(ctx, m.cfg.NetworkTimeout)
	defer cancel()
	return m.cfg.Signer(cCtx, m.cfg.From, types.NewTx(txMessage))
}

// MaxConsecutiveReceiptErrors is the number of failed receipt queries in a row after which WaitMined gives up.
const MaxConsecutiveReceiptErrors = 5

// WaitMined polls for the receipt of txHash until it is found and has NumConfirmations confirmations.
// Transport errors are retried until MaxConsecutiveReceiptErrors happen in a row, then the last one is returned.
func (m *SimpleTxManager) WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	queryTicker := time.NewTicker(m.cfg.ReceiptQueryInterval)
	defer queryTicker.Stop()
	sendTime := time.Now()
	failures := 0
	for {
		receipt, err := m.queryReceipt(ctx, txHash)
		if err != nil {
			failures++
			if failures >= MaxConsecutiveReceiptErrors {
				return nil, fmt.Errorf("failed to query receipt of %s: %w", txHash, err)
			}
		} else {
			failures = 0
		}
		if receipt != nil {
			m.metr.TxConfirmed(receipt)
			m.metr.RecordTxConfirmationLatency(time.Since(sendTime).Milliseconds())
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-queryTicker.C:
		}
	}
}

// queryReceipt returns the receipt of txHash once it has enough confirmations, nil otherwise.
// The error is set when a node query fails.
func (m *SimpleTxManager) queryReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.NetworkTimeout)
	defer cancel()
	receipt, err := m.backend.TransactionReceipt(ctx, txHash)
	if errors.Is(eth.MaybeAsNotFoundErr(err), ethereum.NotFound) {
		m.l.Trace("Transaction not yet mined", "hash", txHash)
		return nil, nil
	} else if err != nil {
		m.metr.RPCError()
		m.l.Info("Receipt retrieval failed", "hash", txHash, "err", err)
		return nil, err
	} else if receipt == nil {
		m.metr.RPCError()
		m.l.Warn("Receipt and error are both nil", "hash", txHash)
		return nil, nil
	}

	txHeight := receipt.BlockNumber.Uint64()
	tipHeight, err := m.backend.BlockNumber(ctx)
	if err != nil {
		m.metr.RPCError()
		m.l.Error("Unable to fetch block number", "err", err)
		return nil, err
	}

	m.l.Debug("Transaction mined, checking confirmations", "hash", txHash, "status", receipt.Status,
		"txHeight", txHeight, "tipHeight", tipHeight, "numConfirmations", m.cfg.NumConfirmations)
	if txHeight+m.cfg.NumConfirmations <= tipHeight+1 {
		m.l.Info("Transaction confirmed", "hash", txHash, "status", receipt.Status, "block", receipt.BlockNumber)
		return receipt, nil
	}

	confsRemaining := (txHeight + m.cfg.NumConfirmations) - (tipHeight + 1)
	m.l.Debug("Transaction not yet confirmed", "hash", txHash, "confsRemaining", confsRemaining)
	return nil, nil
}

// SuggestGasPriceCaps suggests a tip cap and base fee, clamped by the configured bounds.
func (m *SimpleTxManager) SuggestGasPriceCaps(ctx context.Context) (*big.Int, *big.Int, error) {
	cCtx, cancel := context.WithTimeout(ctx, m.cfg.NetworkTimeout)
	defer cancel()

	tip, err := m.backend.SuggestGasTipCap(cCtx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch the suggested gas tip cap: %w", err)
	}
	head, err := m.backend.HeaderByNumber(cCtx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch the header: %w", err)
	} else if head.BaseFee == nil {
		return nil, nil, errors.New("txmgr does not support pre-london blocks that do not have a base fee")
	}
	baseFee := head.BaseFee
	m.metr.RecordTipCap(tip)
	m.metr.RecordBaseFee(baseFee)

	if m.cfg.MinTipCap != nil && tip.Cmp(m.cfg.MinTipCap) < 0 {
		m.l.Debug("Enforcing min tip cap", "minTipCap", m.cfg.MinTipCap, "origTipCap", tip)
		tip = new(big.Int).Set(m.cfg.MinTipCap)
	}
	if m.cfg.MaxTipCap != nil && tip.Cmp(m.cfg.MaxTipCap) > 0 {
		return nil, nil, fmt.Errorf("%w: %v > %v", ErrMaxTipCapExceeded, tip, m.cfg.MaxTipCap)
	}
	if m.cfg.MinBaseFee != nil && baseFee.Cmp(m.cfg.MinBaseFee) < 0 {
		m.l.Debug("Enforcing min base fee", "minBaseFee", m.cfg.MinBaseFee, "origBaseFee", baseFee)
		baseFee = new(big.Int).Set(m.cfg.MinBaseFee)
	}
	if m.cfg.MaxBaseFee != nil && baseFee.Cmp(m.cfg.MaxBaseFee) > 0 {
		return nil, nil, fmt.Errorf("%w: %v > %v", ErrMaxBaseFeeExceeded, baseFee, m.cfg.MaxBaseFee)
	}
	return tip, baseFee, nil
}

// calcGasFeeCap deterministically computes the recommended gas fee cap given
// the base fee and gasTipCap. The resulting gasFeeCap is equal to:
//
//	gasTipCap + 2*baseFee.
func calcGasFeeCap(baseFee, gasTipCap *big.Int) *big.Int {
	return new(big.Int).Add(
		gasTipCap,
		new(big.Int).Mul(baseFee, big.NewInt(2)),
	)
}
