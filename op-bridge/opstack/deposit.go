package opstack

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// DepositEventVersion0 is the only TransactionDeposited opaque data encoding.
var DepositEventVersion0 = common.Hash{}

var ErrUnknownDepositVersion = errors.New("unknown deposit event version")

// UserDeposit is a deposit decoded from a TransactionDeposited log.
type UserDeposit struct {
	SourceHash common.Hash
	From       common.Address
	// To is nil for contract creations.
	To    *common.Address
	Mint  *big.Int
	Value *big.Int
	Gas   uint64
	Data  []byte
}

const (
	userDepositSourceDomain   = 0
	l1InfoDepositSourceDomain = 1
)

// UserDepositSourceHash is the source hash of the user deposit emitted at logIndex in the L1 block l1BlockHash.
func UserDepositSourceHash(l1BlockHash common.Hash, logIndex uint64) common.Hash {
	return depositSourceHash(userDepositSourceDomain, l1BlockHash, logIndex)
}

// depositSourceHash is keccak256(domain ++ keccak256(l1BlockHash ++ index)), all words 32 bytes.
func depositSourceHash(domain uint64, l1BlockHash common.Hash, index uint64) common.Hash {
	var input [64]byte
	copy(input[:32], l1BlockHash[:])
	binary.BigEndian.PutUint64(input[56:], index)
	depositIDHash := crypto.Keccak256Hash(input[:])

	var domainInput [64]byte
	binary.BigEndian.PutUint64(domainInput[24:32], domain)
	copy(domainInput[32:], depositIDHash[:])
	return crypto.Keccak256Hash(domainInput[:])
}

// UnmarshalDepositLogEvent decodes a TransactionDeposited log into the L2 deposit it produces.
func UnmarshalDepositLogEvent(ev *types.Log) (*UserDeposit, error) {
	if len(ev.Topics) != 4 || ev.Topics[0] != transactionDepositedEvent.Topic0 {
		return nil, fmt.Errorf("not a TransactionDeposited log, topics: %v", ev.Topics)
	}
	var (
		from, to   common.Address
		version    big.Int
		opaqueData []byte
	)
	if err := transactionDepositedEvent.DecodeArgs(ev, &from, &to, &version, &opaqueData); err != nil {
		return nil, fmt.Errorf("failed to decode TransactionDeposited log: %w", err)
	}
	if common.BigToHash(&version) != DepositEventVersion0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDepositVersion, &version)
	}
	dep := &UserDeposit{
		SourceHash: UserDepositSourceHash(ev.BlockHash, uint64(ev.Index)),
		From:       from,
	}
	if err := dep.unmarshalOpaqueV0(to, opaqueData); err != nil {
		return nil, err
	}
	return dep, nil
}

// unmarshalOpaqueV0 decodes abi.encodePacked(mint, value, gasLimit, isCreation, data).
func (d *UserDeposit) unmarshalOpaqueV0(to common.Address, opaqueData []byte) error {
	if len(opaqueData) < 32+32+8+1 {
		return fmt.Errorf("unexpected opaqueData length: %d", len(opaqueData))
	}
	offset := 0
	d.Mint = new(big.Int).SetBytes(opaqueData[offset : offset+32])
	offset += 32
	d.Value = new(big.Int).SetBytes(opaqueData[offset : offset+32])
	offset += 32
	d.Gas = binary.BigEndian.Uint64(opaqueData[offset : offset+8])
	offset += 8
	switch opaqueData[offset] {
	case 0:
		d.To = &to
	case 1:
		d.To = nil
	default:
		return fmt.Errorf("invalid isCreation value: %d", opaqueData[offset])
	}
	offset += 1
	d.Data = common.CopyBytes(opaqueData[offset:])
	return nil
}

// Tx is the L2 deposit transaction the deposit is derived into.
func (d *UserDeposit) Tx() *types.Transaction {
	mint := d.Mint
	if mint != nil && mint.Sign() == 0 {
		mint = nil
	}
	return types.NewTx(&types.DepositTx{
		SourceHash:          d.SourceHash,
		From:                d.From,
		To:                  d.To,
		Mint:                mint,
		Value:               d.Value,
		Gas:                 d.Gas,
		IsSystemTransaction: false,
		Data:                d.Data,
	})
}

// Hash is the L2 transaction hash of the deposit.
func (d *UserDeposit) Hash() common.Hash {
	return d.Tx().Hash()
}

// DepositsFromReceipt returns the deposits emitted by the portal in an L1 receipt, in log order.
func DepositsFromReceipt(receipt *types.Receipt, portal common.Address) ([]*UserDeposit, error) {
	var deposits []*UserDeposit
	for _, ev := range receipt.Logs {
		if ev.Address != portal || len(ev.Topics) == 0 || ev.Topics[0] != transactionDepositedEvent.Topic0 {
			continue
		}
		dep, err := UnmarshalDepositLogEvent(ev)
		if err != nil {
			return nil, fmt.Errorf("malformed deposit log %d in tx %s: %w", ev.Index, receipt.TxHash, err)
		}
		deposits = append(deposits, dep)
	}
	return deposits, nil
}
