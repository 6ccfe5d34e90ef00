package bridge

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/opbridge/opbridge/op-service/eth"
)

// Chain identifies one side of the bridge.
type Chain string

const (
	L1 Chain = "l1"
	L2 Chain = "l2"
)

func (c Chain) Label() string {
	switch c {
	case L1:
		return "L1"
	case L2:
		return "L2"
	default:
		return string(c)
	}
}

// TxRequest is an unsigned call on one chain.
type TxRequest struct {
	Chain Chain
	To    common.Address
	Data  hexutil.Bytes
	Value eth.ETH
	// GasLimit is estimated by the submitter when 0.
	GasLimit uint64
}

// Withdrawal describes a message passed from L2 to L1. It identifies the
// withdrawal on L1 and must be the same value for proving and finalizing.
type Withdrawal struct {
	Nonce    *big.Int
	Sender   common.Address
	Target   common.Address
	Value    *big.Int
	GasLimit *big.Int
	Data     hexutil.Bytes
	// Hash is the withdrawal hash as emitted by the L2ToL1MessagePasser.
	Hash common.Hash
}

// OutputProof is the L1 commitment covering a withdrawal and the proof of the withdrawal against it.
type OutputProof struct {
	// Index is the L2 output index, or the dispute game index, on L1.
	Index *big.Int
	// L2BlockNumber is the L2 block committed to.
	L2BlockNumber uint64
	OutputRoot    common.Hash

	// Output root preimage.
	Version                  common.Hash
	StateRoot                common.Hash
	MessagePasserStorageRoot common.Hash
	LatestBlockhash          common.Hash

	// WithdrawalProof is the storage proof of the withdrawal in the message passer.
	WithdrawalProof []hexutil.Bytes
}

// ChainClient is the capability the orchestrators drive the transfer with.
// Waits block until their condition holds, the context is done or a transport error occurs.
type ChainClient interface {
	Balance(ctx context.Context, chain Chain, account common.Address) (eth.ETH, error)

	BuildDeposit(ctx context.Context, to common.Address, mint eth.ETH) (TxRequest, error)
	BuildWithdrawalInit(ctx context.Context, to common.Address, amount eth.ETH) (TxRequest, error)
	BuildProve(ctx context.Context, proof OutputProof, withdrawal Withdrawal) (TxRequest, error)

	Submit(ctx context.Context, req TxRequest) (common.Hash, error)
	WaitForReceipt(ctx context.Context, chain Chain, hash common.Hash) (*types.Receipt, error)

	// DeriveL2Hash computes the L2 hash of the deposit in an L1 receipt, without chain access.
	// It returns ErrDerivationNotFound when the receipt carries no deposit.
	DeriveL2Hash(l1Receipt *types.Receipt) (common.Hash, error)

	WaitUntilProvable(ctx context.Context, l2Receipt *types.Receipt) (OutputProof, Withdrawal, error)
	WaitUntilChallengeElapsed(ctx context.Context, withdrawal Withdrawal) error
	Finalize(ctx context.Context, withdrawal Withdrawal) (common.Hash, error)
}
