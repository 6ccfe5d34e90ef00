package txmgr

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"

	"github.com/opbridge/opbridge/op-service/testlog"
	"github.com/opbridge/opbridge/op-service/txmgr/metrics"
)

// mockBackend is a minimal chain: published txs are mined on demand.
type mockBackend struct {
	mu sync.Mutex

	chainID     *big.Int
	tip         *big.Int
	baseFee     *big.Int
	nonce       uint64
	blockNumber uint64
	gasEstimate uint64

	sent          []*types.Transaction
	receipts      map[common.Hash]*types.Receipt
	receiptErrs   int
	receiptMisses int
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		chainID:     big.NewInt(900),
		tip:         big.NewInt(1_000),
		baseFee:     big.NewInt(10_000_000),
		nonce:       7,
		blockNumber: 100,
		gasEstimate: 50_000,
		receipts:    make(map[common.Hash]*types.Receipt),
	}
}

func (b *mockBackend) ChainID(ctx context.Context) (*big.Int, error) { return b.chainID, nil }

func (b *mockBackend) BlockNumber(ctx context.Context) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.blockNumber, nil
}

func (b *mockBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &types.Header{Number: big.NewInt(int64(b.blockNumber)), BaseFee: b.baseFee}, nil
}

func (b *mockBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) { return b.tip, nil }

func (b *mockBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return b.nonce, nil
}

func (b *mockBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return b.gasEstimate, nil
}

func (b *mockBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, tx)
	return nil
}

func (b *mockBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.receiptErrs > 0 {
		b.receiptErrs--
		return nil, errors.New("connection reset")
	}
	if b.receiptMisses > 0 {
		b.receiptMisses--
		return nil, ethereum.NotFound
	}
	r, ok := b.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (b *mockBackend) mine(hash common.Hash, status uint64, block uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.receipts[hash] = &types.Receipt{
		TxHash:            hash,
		Status:            status,
		BlockNumber:       new(big.Int).SetUint64(block),
		GasUsed:           21_000,
		EffectiveGasPrice: big.NewInt(1_000_000_000),
	}
}

func newTestManager(t *testing.T, backend *mockBackend, modify func(*CLIConfig)) *SimpleTxManager {
	cliCfg := NewCLIConfig(DefaultBridgeFlagValues)
	cliCfg.PrivateKey = testPrivateKey
	cliCfg.ReceiptQueryInterval = 10 * time.Millisecond
	if modify != nil {
		modify(&cliCfg)
	}
	logger := testlog.Logger(t, log.LevelDebug)
	cfg, err := NewConfig(cliCfg, backend, logger)
	require.NoError(t, err)
	return NewSimpleTxManagerFromConfig("test", logger, &metrics.NoopTxMetrics{}, cfg)
}

func TestSubmit(t *testing.T) {
	backend := newMockBackend()
	mgr := newTestManager(t, backend, nil)
	to := common.HexToAddress("0x4200000000000000000000000000000000000016")

	hash, err := mgr.Submit(context.Background(), TxCandidate{
		To:     &to,
		TxData: []byte{0xc2, 0xb1, 0x2a, 0x73},
		Value:  big.NewInt(1e18),
	})
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)

	tx := backend.sent[0]
	require.Equal(t, hash, tx.Hash())
	require.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
	require.EqualValues(t, 7, tx.Nonce())
	require.EqualValues(t, 50_000, tx.Gas())
	require.Equal(t, big.NewInt(1e18), tx.Value())
	require.Equal(t, &to, tx.To())
	// the default min tip cap of 0.001 gwei is above the suggested 1000 wei
	require.Equal(t, big.NewInt(1_000_000), tx.GasTipCap())
	require.Equal(t, big.NewInt(1_000_000+2*10_000_000), tx.GasFeeCap())

	sender, err := types.Sender(types.LatestSignerForChainID(backend.chainID), tx)
	require.NoError(t, err)
	key, err := crypto.HexToECDSA(testPrivateKey[2:])
	require.NoError(t, err)
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey), sender)
	require.Equal(t, sender, mgr.From())
}

func TestSubmitUsesGivenGasLimit(t *testing.T) {
	backend := newMockBackend()
	mgr := newTestManager(t, backend, nil)
	_, err := mgr.Submit(context.Background(), TxCandidate{GasLimit: 123_456, To: &common.Address{}})
	require.NoError(t, err)
	require.EqualValues(t, 123_456, backend.sent[0].Gas())
	require.Equal(t, new(big.Int), backend.sent[0].Value())
}

func TestSubmitMaxTipCapExceeded(t *testing.T) {
	backend := newMockBackend()
	backend.tip = big.NewInt(5_000_000_000)
	mgr := newTestManager(t, backend, func(c *CLIConfig) { c.MaxTipCapGwei = 1 })
	_, err := mgr.Submit(context.Background(), TxCandidate{To: &common.Address{}})
	require.ErrorIs(t, err, ErrMaxTipCapExceeded)
	require.Empty(t, backend.sent)
}

func TestWaitMinedAcrossMissesAndErrors(t *testing.T) {
	backend := newMockBackend()
	backend.receiptMisses = 2
	backend.receiptErrs = 1
	mgr := newTestManager(t, backend, nil)
	hash := common.Hash{0xaa}
	backend.mine(hash, types.ReceiptStatusSuccessful, 100)

	receipt, err := mgr.WaitMined(context.Background(), hash)
	require.NoError(t, err)
	require.Equal(t, hash, receipt.TxHash)
	require.Zero(t, backend.receiptMisses)
	require.Zero(t, backend.receiptErrs)
}

func TestWaitMinedToleratesErrorsBelowLimit(t *testing.T) {
	backend := newMockBackend()
	backend.receiptErrs = MaxConsecutiveReceiptErrors - 1
	mgr := newTestManager(t, backend, nil)
	hash := common.Hash{0xab}
	backend.mine(hash, types.ReceiptStatusSuccessful, 100)

	receipt, err := mgr.WaitMined(context.Background(), hash)
	require.NoError(t, err)
	require.Equal(t, hash, receipt.TxHash)
}

func TestWaitMinedGivesUpOnTransportErrors(t *testing.T) {
	backend := newMockBackend()
	backend.receiptErrs = 1000
	mgr := newTestManager(t, backend, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := mgr.WaitMined(ctx, common.Hash{0xac})
	require.ErrorContains(t, err, "connection reset")
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1000-MaxConsecutiveReceiptErrors, backend.receiptErrs)
}

func TestWaitMinedWaitsForConfirmations(t *testing.T) {
	backend := newMockBackend()
	mgr := newTestManager(t, backend, func(c *CLIConfig) { c.NumConfirmations = 3 })
	hash := common.Hash{0xbb}
	backend.mine(hash, types.ReceiptStatusFailed, 100)

	go func() {
		time.Sleep(50 * time.Millisecond)
		backend.mu.Lock()
		backend.blockNumber = 102
		backend.mu.Unlock()
	}()
	receipt, err := mgr.WaitMined(context.Background(), hash)
	require.NoError(t, err)
	require.Equal(t, types.ReceiptStatusFailed, receipt.Status)
	bn, _ := backend.BlockNumber(context.Background())
	require.EqualValues(t, 102, bn)
}

func TestWaitMinedCancelled(t *testing.T) {
	backend := newMockBackend()
	mgr := newTestManager(t, backend, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := mgr.WaitMined(ctx, common.Hash{0xcc})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCalcGasFeeCap(t *testing.T) {
	require.Equal(t, big.NewInt(25), calcGasFeeCap(big.NewInt(10), big.NewInt(5)))
}
