package bridge

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/opbridge/opbridge/op-service/eth"
)

// fakeClient is a ChainClient with per-stage canned responses. Every call is recorded.
type fakeClient struct {
	balances map[Chain]eth.ETH
	// receipts are the statuses returned by WaitForReceipt, keyed by tx hash.
	receipts   map[common.Hash]uint64
	l2Hash     common.Hash
	deriveErr  error
	proof      OutputProof
	withdrawal Withdrawal

	waitErr error

	calls     []string
	submitted []TxRequest
	proved    []Withdrawal
	awaited   []Withdrawal
	finalized []Withdrawal
}

var (
	depositTxHash  = common.HexToHash("0x01")
	withdrawTxHash = common.HexToHash("0x02")
	proveTxHash    = common.HexToHash("0x03")
	finalizeTxHash = common.HexToHash("0x04")
	derivedL2Hash  = common.HexToHash("0x05")
)

func newFakeClient() *fakeClient {
	return &fakeClient{
		balances: map[Chain]eth.ETH{L1: eth.Ether(5), L2: eth.Ether(5)},
		receipts: map[common.Hash]uint64{
			depositTxHash:  types.ReceiptStatusSuccessful,
			withdrawTxHash: types.ReceiptStatusSuccessful,
			proveTxHash:    types.ReceiptStatusSuccessful,
			finalizeTxHash: types.ReceiptStatusSuccessful,
			derivedL2Hash:  types.ReceiptStatusSuccessful,
		},
		l2Hash: derivedL2Hash,
		proof: OutputProof{
			Index:         big.NewInt(7),
			L2BlockNumber: 100,
			OutputRoot:    common.HexToHash("0xaa"),
		},
		withdrawal: Withdrawal{
			Nonce:    big.NewInt(42),
			Sender:   common.HexToAddress("0x1111"),
			Target:   common.HexToAddress("0x2222"),
			Value:    eth.Ether(1).ToBig(),
			GasLimit: big.NewInt(100_000),
			Data:     []byte{},
			Hash:     common.HexToHash("0xbb"),
		},
	}
}

func (f *fakeClient) Balance(ctx context.Context, chain Chain, account common.Address) (eth.ETH, error) {
	f.calls = append(f.calls, "Balance")
	return f.balances[chain], nil
}

func (f *fakeClient) BuildDeposit(ctx context.Context, to common.Address, mint eth.ETH) (TxRequest, error) {
	f.calls = append(f.calls, "BuildDeposit")
	return TxRequest{Chain: L1, To: common.HexToAddress("0xdead"), Value: mint, Data: []byte{0x01}}, nil
}

func (f *fakeClient) BuildWithdrawalInit(ctx context.Context, to common.Address, amount eth.ETH) (TxRequest, error) {
	f.calls = append(f.calls, "BuildWithdrawalInit")
	return TxRequest{Chain: L2, To: common.HexToAddress("0x4200000000000000000000000000000000000016"), Value: amount, Data: []byte{0x02}}, nil
}

func (f *fakeClient) BuildProve(ctx context.Context, proof OutputProof, w Withdrawal) (TxRequest, error) {
	f.calls = append(f.calls, "BuildProve")
	f.proved = append(f.proved, w)
	return TxRequest{Chain: L1, To: common.HexToAddress("0xdead"), Data: []byte{0x03}}, nil
}

func (f *fakeClient) Submit(ctx context.Context, req TxRequest) (common.Hash, error) {
	f.calls = append(f.calls, "Submit")
	f.submitted = append(f.submitted, req)
	switch req.Data[0] {
	case 0x01:
		return depositTxHash, nil
	case 0x02:
		return withdrawTxHash, nil
	default:
		return proveTxHash, nil
	}
}

func (f *fakeClient) WaitForReceipt(ctx context.Context, chain Chain, hash common.Hash) (*types.Receipt, error) {
	f.calls = append(f.calls, "WaitForReceipt")
	if f.waitErr != nil {
		return nil, f.waitErr
	}
	return &types.Receipt{Status: f.receipts[hash], TxHash: hash, BlockNumber: big.NewInt(100)}, nil
}

func (f *fakeClient) DeriveL2Hash(l1Receipt *types.Receipt) (common.Hash, error) {
	f.calls = append(f.calls, "DeriveL2Hash")
	if f.deriveErr != nil {
		return common.Hash{}, f.deriveErr
	}
	return f.l2Hash, nil
}

func (f *fakeClient) WaitUntilProvable(ctx context.Context, l2Receipt *types.Receipt) (OutputProof, Withdrawal, error) {
	f.calls = append(f.calls, "WaitUntilProvable")
	return f.proof, f.withdrawal, nil
}

func (f *fakeClient) WaitUntilChallengeElapsed(ctx context.Context, w Withdrawal) error {
	f.calls = append(f.calls, "WaitUntilChallengeElapsed")
	f.awaited = append(f.awaited, w)
	return nil
}

func (f *fakeClient) Finalize(ctx context.Context, w Withdrawal) (common.Hash, error) {
	f.calls = append(f.calls, "Finalize")
	f.finalized = append(f.finalized, w)
	return finalizeTxHash, nil
}

func (f *fakeClient) called(name string) bool {
	for _, c := range f.calls {
		if c == name {
			return true
		}
	}
	return false
}

var _ ChainClient = (*fakeClient)(nil)

// recordingMetrics records stages and outcomes per direction.
type recordingMetrics struct {
	stages   []string
	outcomes []string
	balances map[string]eth.ETH
}

func (m *recordingMetrics) RecordBalance(chain string, balance eth.ETH) {
	if m.balances == nil {
		m.balances = make(map[string]eth.ETH)
	}
	m.balances[chain] = balance
}

func (m *recordingMetrics) RecordStage(direction string, stage string) {
	m.stages = append(m.stages, direction+":"+stage)
}

func (m *recordingMetrics) RecordStageDuration(string, string, time.Duration) {}

func (m *recordingMetrics) RecordOutcome(direction string, outcome string) {
	m.outcomes = append(m.outcomes, direction+":"+outcome)
}
