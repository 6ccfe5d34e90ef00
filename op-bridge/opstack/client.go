package opstack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/schollz/progressbar/v3"

	"github.com/opbridge/opbridge/op-bridge/bridge"
	"github.com/opbridge/opbridge/op-service/eth"
	"github.com/opbridge/opbridge/op-service/predeploys"
	"github.com/opbridge/opbridge/op-service/retry"
	"github.com/opbridge/opbridge/op-service/txmgr"
)

// maxConsecutivePollErrors is the number of failed polls in a row after which a wait gives up.
const maxConsecutivePollErrors = 5

type Config struct {
	// Portal is the OptimismPortal (or OptimismPortal2) proxy on L1.
	Portal common.Address
	// L2OutputOracle is only used by the Oracle proof system.
	L2OutputOracle common.Address
	ProofSystem    ProofSystem

	// DepositGasLimit is the L2 gas limit of deposits.
	DepositGasLimit uint64
	// WithdrawalGasLimit is the L1 gas limit of the withdrawal message.
	WithdrawalGasLimit uint64

	PollInterval    time.Duration
	MaxPollInterval time.Duration

	// Progress receives a progress bar of the challenge period when set.
	Progress io.Writer
}

func (c Config) Check() error {
	if c.Portal == (common.Address{}) {
		return errors.New("portal address is required")
	}
	if err := c.ProofSystem.Check(); err != nil {
		return err
	}
	if c.ProofSystem == Oracle && c.L2OutputOracle == (common.Address{}) {
		return errors.New("L2OutputOracle address is required by the oracle proof system")
	}
	if c.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	if c.MaxPollInterval < c.PollInterval {
		return fmt.Errorf("max poll interval %s is lower than poll interval %s", c.MaxPollInterval, c.PollInterval)
	}
	return nil
}

// L2Client is the L2 chain access of the Client. *ethclient.Client satisfies it.
type L2Client interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// TxManager publishes and tracks transactions of the bridge account on one chain.
type TxManager interface {
	From() common.Address
	Submit(ctx context.Context, candidate txmgr.TxCandidate) (common.Hash, error)
	WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Client implements bridge.ChainClient against OP-Stack contracts.
type Client struct {
	cfg     Config
	log     log.Logger
	l1      L1Client
	l2      L2Client
	proofs  ProofClient
	txmgrs  map[bridge.Chain]TxManager
	outputs outputSource
	backoff retry.Strategy
}

var _ bridge.ChainClient = (*Client)(nil)

func NewClient(cfg Config, l log.Logger, l1 L1Client, l2 L2Client, proofs ProofClient, l1Tx, l2Tx TxManager) (*Client, error) {
	if err := cfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid opstack config: %w", err)
	}
	caller := contractCaller{l1: l1}
	var outputs outputSource
	switch cfg.ProofSystem {
	case Games:
		outputs = &gamesSource{contractCaller: caller, portal: cfg.Portal}
	case Oracle:
		outputs = &oracleSource{contractCaller: caller, portal: cfg.Portal, oracle: cfg.L2OutputOracle}
	}
	return &Client{
		cfg:     cfg,
		log:     l,
		l1:      l1,
		l2:      l2,
		proofs:  proofs,
		txmgrs:  map[bridge.Chain]TxManager{bridge.L1: l1Tx, bridge.L2: l2Tx},
		outputs: outputs,
		backoff: &retry.ExponentialStrategy{
			Min:       cfg.PollInterval,
			Max:       cfg.MaxPollInterval,
			MaxJitter: 250 * time.Millisecond,
		},
	}, nil
}

func (c *Client) Balance(ctx context.Context, chain bridge.Chain, account common.Address) (eth.ETH, error) {
	var (
		bal *big.Int
		err error
	)
	switch chain {
	case bridge.L1:
		bal, err = c.l1.BalanceAt(ctx, account, nil)
	case bridge.L2:
		bal, err = c.l2.BalanceAt(ctx, account, nil)
	default:
		return eth.ZeroWei, fmt.Errorf("unknown chain %q", chain)
	}
	if err != nil {
		return eth.ZeroWei, err
	}
	return eth.WeiBig(bal), nil
}

func (c *Client) BuildDeposit(ctx context.Context, to common.Address, mint eth.ETH) (bridge.TxRequest, error) {
	data, err := depositTransactionFn.EncodeArgs(to, mint.ToBig(), c.cfg.DepositGasLimit, false, []byte{})
	if err != nil {
		return bridge.TxRequest{}, fmt.Errorf("failed to pack depositTransaction: %w", err)
	}
	return bridge.TxRequest{Chain: bridge.L1, To: c.cfg.Portal, Data: data, Value: mint}, nil
}

func (c *Client) BuildWithdrawalInit(ctx context.Context, to common.Address, amount eth.ETH) (bridge.TxRequest, error) {
	gasLimit := new(big.Int).SetUint64(c.cfg.WithdrawalGasLimit)
	data, err := initiateWithdrawalFn.EncodeArgs(to, gasLimit, []byte{})
	if err != nil {
		return bridge.TxRequest{}, fmt.Errorf("failed to pack initiateWithdrawal: %w", err)
	}
	return bridge.TxRequest{Chain: bridge.L2, To: predeploys.L2ToL1MessagePasserAddr, Data: data, Value: amount}, nil
}

func (c *Client) BuildProve(ctx context.Context, proof bridge.OutputProof, w bridge.Withdrawal) (bridge.TxRequest, error) {
	nodes := make([][]byte, len(proof.WithdrawalProof))
	for i, n := range proof.WithdrawalProof {
		nodes[i] = n
	}
	data, err := proveWithdrawalFn.EncodeArgs(
		toWithdrawalTransaction(w),
		proof.Index,
		outputRootProof{
			Version:                  proof.Version,
			StateRoot:                proof.StateRoot,
			MessagePasserStorageRoot: proof.MessagePasserStorageRoot,
			LatestBlockhash:          proof.LatestBlockhash,
		},
		nodes,
	)
	if err != nil {
		return bridge.TxRequest{}, fmt.Errorf("failed to pack proveWithdrawalTransaction: %w", err)
	}
	return bridge.TxRequest{Chain: bridge.L1, To: c.cfg.Portal, Data: data}, nil
}

func (c *Client) Submit(ctx context.Context, req bridge.TxRequest) (common.Hash, error) {
	mgr, ok := c.txmgrs[req.Chain]
	if !ok {
		return common.Hash{}, fmt.Errorf("unknown chain %q", req.Chain)
	}
	to := req.To
	return mgr.Submit(ctx, txmgr.TxCandidate{
		TxData:   req.Data,
		To:       &to,
		GasLimit: req.GasLimit,
		Value:    req.Value.ToBig(),
	})
}

func (c *Client) WaitForReceipt(ctx context.Context, chain bridge.Chain, hash common.Hash) (*types.Receipt, error) {
	mgr, ok := c.txmgrs[chain]
	if !ok {
		return nil, fmt.Errorf("unknown chain %q", chain)
	}
	return mgr.WaitMined(ctx, hash)
}

// DeriveL2Hash returns the L2 hash of the first portal deposit in the receipt.
// A receipt without a decodable deposit yields bridge.ErrDerivationNotFound.
func (c *Client) DeriveL2Hash(l1Receipt *types.Receipt) (common.Hash, error) {
	deposits, err := DepositsFromReceipt(l1Receipt, c.cfg.Portal)
	if err != nil {
		c.log.Warn("Failed to decode deposit", "tx", l1Receipt.TxHash, "err", err)
		return common.Hash{}, fmt.Errorf("%w: %w", bridge.ErrDerivationNotFound, err)
	}
	if len(deposits) == 0 {
		return common.Hash{}, bridge.ErrDerivationNotFound
	}
	return deposits[0].Hash(), nil
}

// WaitUntilProvable waits for an L2 output covering the withdrawal receipt to be published on L1,
// then builds the proof of the withdrawal against it.
func (c *Client) WaitUntilProvable(ctx context.Context, l2Receipt *types.Receipt) (bridge.OutputProof, bridge.Withdrawal, error) {
	w, err := ParseMessagePassed(l2Receipt)
	if err != nil {
		return bridge.OutputProof{}, bridge.Withdrawal{}, err
	}
	l2Block := l2Receipt.BlockNumber.Uint64()
	l := c.log.New("withdrawal", w.Hash, "l2_block", l2Block, "proof_system", c.cfg.ProofSystem)

	var covering *commitment
	err = c.poll(ctx, l, "output commitment", func(ctx context.Context) (bool, error) {
		found, err := c.outputs.covering(ctx, l2Block)
		if err != nil {
			return false, err
		}
		if found == nil {
			l.Info("Waiting for an L2 output covering the withdrawal")
			return false, nil
		}
		covering = found
		return true, nil
	})
	if err != nil {
		return bridge.OutputProof{}, bridge.Withdrawal{}, err
	}
	l.Info("Found L2 output covering the withdrawal", "index", covering.Index, "output_block", covering.L2BlockNumber)

	header, err := c.l2.HeaderByNumber(ctx, new(big.Int).SetUint64(covering.L2BlockNumber))
	if err != nil {
		return bridge.OutputProof{}, bridge.Withdrawal{}, fmt.Errorf("failed to get L2 block %d: %w", covering.L2BlockNumber, err)
	}
	nodes, storageRoot, err := GetWithdrawalProof(ctx, c.proofs, w, header)
	if err != nil {
		return bridge.OutputProof{}, bridge.Withdrawal{}, err
	}
	blockHash := header.Hash()
	if root := OutputRootV0(header.Root, storageRoot, blockHash); root != covering.OutputRoot {
		return bridge.OutputProof{}, bridge.Withdrawal{}, fmt.Errorf("output root mismatch at L2 block %d: computed %s, published %s",
			covering.L2BlockNumber, root, covering.OutputRoot)
	}
	return bridge.OutputProof{
		Index:                    covering.Index,
		L2BlockNumber:            covering.L2BlockNumber,
		OutputRoot:               covering.OutputRoot,
		StateRoot:                header.Root,
		MessagePasserStorageRoot: storageRoot,
		LatestBlockhash:          blockHash,
		WithdrawalProof:          nodes,
	}, w, nil
}

// WaitUntilChallengeElapsed waits until the proven withdrawal can be finalized.
func (c *Client) WaitUntilChallengeElapsed(ctx context.Context, w bridge.Withdrawal) error {
	submitter := c.txmgrs[bridge.L1].From()
	l := c.log.New("withdrawal", w.Hash, "proof_system", c.cfg.ProofSystem)
	var bar *progressbar.ProgressBar
	err := c.poll(ctx, l, "challenge period", func(ctx context.Context) (bool, error) {
		status, err := c.outputs.challenge(ctx, w, submitter)
		if err != nil {
			return false, err
		}
		if status.Finalizable {
			return true, nil
		}
		l.Info("Waiting for the challenge period", "remaining", status.Remaining, "period", status.Period)
		if c.cfg.Progress != nil && status.Period > 0 {
			if bar == nil {
				bar = progressbar.NewOptions64(int64(status.Period.Seconds()),
					progressbar.OptionSetWriter(c.cfg.Progress),
					progressbar.OptionSetDescription("challenge period"),
					progressbar.OptionSetPredictTime(false),
					progressbar.OptionShowCount(),
				)
			}
			_ = bar.Set64(int64((status.Period - status.Remaining).Seconds()))
		}
		return false, nil
	})
	if bar != nil {
		_ = bar.Finish()
	}
	return err
}

func (c *Client) Finalize(ctx context.Context, w bridge.Withdrawal) (common.Hash, error) {
	data, err := finalizeWithdrawalFn.EncodeArgs(toWithdrawalTransaction(w))
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack finalizeWithdrawalTransaction: %w", err)
	}
	return c.Submit(ctx, bridge.TxRequest{Chain: bridge.L1, To: c.cfg.Portal, Data: data})
}

// poll calls cond with backoff until it is done. Errors are retried until maxConsecutivePollErrors
// occur in a row.
func (c *Client) poll(ctx context.Context, l log.Logger, what string, cond func(ctx context.Context) (bool, error)) error {
	failures := 0
	err := retry.Until(ctx, c.backoff, func(ctx context.Context) (bool, error) {
		done, err := cond(ctx)
		if err != nil {
			failures++
			if failures >= maxConsecutivePollErrors {
				return false, err
			}
			l.Warn("Poll failed, retrying", "waiting_for", what, "failures", failures, "err", err)
			return false, nil
		}
		failures = 0
		return done, nil
	})
	if err != nil {
		return fmt.Errorf("failed waiting for %s: %w", what, err)
	}
	return nil
}

func toWithdrawalTransaction(w bridge.Withdrawal) withdrawalTransaction {
	return withdrawalTransaction{
		Nonce:    w.Nonce,
		Sender:   w.Sender,
		Target:   w.Target,
		Value:    w.Value,
		GasLimit: w.GasLimit,
		Data:     w.Data,
	}
}
