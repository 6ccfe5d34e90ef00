package opstack

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/holiman/uint256"

	"github.com/opbridge/opbridge/op-bridge/bridge"
	"github.com/opbridge/opbridge/op-service/predeploys"
)

var (
	ErrNoMessagePassed        = errors.New("unable to find MessagePassed event")
	ErrWithdrawalHashMismatch = errors.New("computed withdrawal hash does not match the event")
)

type ProofClient interface {
	GetProof(ctx context.Context, account common.Address, keys []string, blockNumber *big.Int) (*gethclient.AccountResult, error)
}

// Standard ABI types copied from golang ABI tests
var (
	uint256Type, _ = abi.NewType("uint256", "", nil)
	bytesType, _   = abi.NewType("bytes", "", nil)
	addressType, _ = abi.NewType("address", "", nil)

	withdrawalHashArgs = abi.Arguments{
		{Name: "nonce", Type: uint256Type},
		{Name: "sender", Type: addressType},
		{Name: "target", Type: addressType},
		{Name: "value", Type: uint256Type},
		{Name: "gasLimit", Type: uint256Type},
		{Name: "data", Type: bytesType},
	}
)

// WithdrawalHash computes the hash of the withdrawal as stored in the L2ToL1MessagePasser:
// keccak256(abi.encode(nonce, sender, target, value, gasLimit, data)).
func WithdrawalHash(w bridge.Withdrawal) (common.Hash, error) {
	enc, err := withdrawalHashArgs.Pack(w.Nonce, w.Sender, w.Target, w.Value, w.GasLimit, []byte(w.Data))
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack for withdrawal hash: %w", err)
	}
	return crypto.Keccak256Hash(enc), nil
}

// ParseMessagePassed returns the first withdrawal initiated in an L2 receipt.
// The event hash is checked against the recomputed withdrawal hash.
func ParseMessagePassed(receipt *types.Receipt) (bridge.Withdrawal, error) {
	for _, ev := range receipt.Logs {
		if ev.Address != predeploys.L2ToL1MessagePasserAddr || len(ev.Topics) == 0 || ev.Topics[0] != messagePassedEvent.Topic0 {
			continue
		}
		var (
			nonce, value, gasLimit big.Int
			sender, target         common.Address
			data                   []byte
			hash                   common.Hash
		)
		if err := messagePassedEvent.DecodeArgs(ev, &nonce, &sender, &target, &value, &gasLimit, &data, &hash); err != nil {
			return bridge.Withdrawal{}, fmt.Errorf("failed to parse log: %w", err)
		}
		w := bridge.Withdrawal{
			Nonce:    &nonce,
			Sender:   sender,
			Target:   target,
			Value:    &value,
			GasLimit: &gasLimit,
			Data:     data,
			Hash:     hash,
		}
		computed, err := WithdrawalHash(w)
		if err != nil {
			return bridge.Withdrawal{}, err
		}
		if computed != w.Hash {
			return bridge.Withdrawal{}, fmt.Errorf("%w: computed %s, event %s", ErrWithdrawalHashMismatch, computed, w.Hash)
		}
		return w, nil
	}
	return bridge.Withdrawal{}, ErrNoMessagePassed
}

// StorageSlotOfWithdrawalHash determines the storage slot of the L2ToL1MessagePasser contract to look at
// given a WithdrawalHash
func StorageSlotOfWithdrawalHash(hash common.Hash) common.Hash {
	// The withdrawals mapping is the 0th storage slot in the L2ToL1MessagePasser contract.
	// To determine the storage slot, use keccak256(withdrawalHash ++ p)
	// Where p is the 32 byte value of the storage slot and ++ is concatenation
	buf := make([]byte, 64)
	copy(buf, hash[:])
	return crypto.Keccak256Hash(buf)
}

// GetWithdrawalProof fetches the storage proof of the withdrawal in the message passer at the given L2 block,
// and verifies it against the block state root. It returns the proof nodes and the message passer storage root.
func GetWithdrawalProof(ctx context.Context, proofCl ProofClient, w bridge.Withdrawal, l2Header *types.Header) ([]hexutil.Bytes, common.Hash, error) {
	slot := StorageSlotOfWithdrawalHash(w.Hash)
	p, err := proofCl.GetProof(ctx, predeploys.L2ToL1MessagePasserAddr, []string{slot.String()}, l2Header.Number)
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("failed to get withdrawal proof: %w", err)
	}
	if len(p.StorageProof) != 1 {
		return nil, common.Hash{}, errors.New("invalid amount of storage proofs")
	}
	if p.StorageProof[0].Value == nil || p.StorageProof[0].Value.Sign() == 0 {
		return nil, common.Hash{}, fmt.Errorf("withdrawal %s not present in message passer at block %d", w.Hash, l2Header.Number)
	}
	if err := VerifyProof(l2Header.Root, p); err != nil {
		return nil, common.Hash{}, err
	}

	// Encode it as expected by the contract
	trieNodes := make([]hexutil.Bytes, len(p.StorageProof[0].Proof))
	for i, s := range p.StorageProof[0].Proof {
		trieNodes[i] = common.FromHex(s)
	}
	return trieNodes, p.StorageHash, nil
}

// VerifyProof checks the account proof against stateRoot and every storage proof against the account storage root.
func VerifyProof(stateRoot common.Hash, proof *gethclient.AccountResult) error {
	balance, overflow := uint256.FromBig(proof.Balance)
	if overflow {
		return fmt.Errorf("proof balance overflows uint256: %d", proof.Balance)
	}
	err := VerifyAccountProof(stateRoot, proof.Address, types.StateAccount{
		Nonce:    proof.Nonce,
		Balance:  balance,
		Root:     proof.StorageHash,
		CodeHash: proof.CodeHash[:],
	}, proof.AccountProof)
	if err != nil {
		return fmt.Errorf("failed to validate account: %w", err)
	}
	for i, storageProof := range proof.StorageProof {
		if err := VerifyStorageProof(proof.StorageHash, storageProof); err != nil {
			return fmt.Errorf("failed to validate storage proof %d: %w", i, err)
		}
	}
	return nil
}

func VerifyAccountProof(root common.Hash, addr common.Address, account types.StateAccount, proof []string) error {
	expected, err := rlp.EncodeToBytes(&account)
	if err != nil {
		return fmt.Errorf("failed to encode rlp: %w", err)
	}
	return verifyTrieValue(root, crypto.Keccak256(addr[:]), expected, proof)
}

func VerifyStorageProof(root common.Hash, proof gethclient.StorageResult) error {
	value := new(big.Int)
	if proof.Value != nil {
		value = proof.Value
	}
	expected, err := rlp.EncodeToBytes(value.Bytes())
	if err != nil {
		return fmt.Errorf("failed to encode rlp: %w", err)
	}
	return verifyTrieValue(root, crypto.Keccak256(common.FromHex(proof.Key)), expected, proof.Proof)
}

func verifyTrieValue(root common.Hash, key []byte, expected []byte, proof []string) error {
	db := memorydb.New()
	for _, encodedNode := range proof {
		node := common.FromHex(encodedNode)
		if err := db.Put(crypto.Keccak256(node), node); err != nil {
			return fmt.Errorf("failed to load proof node: %w", err)
		}
	}
	value, err := trie.VerifyProof(root, key, db)
	if err != nil {
		return fmt.Errorf("failed to verify proof: %w", err)
	}
	if !bytes.Equal(value, expected) {
		return fmt.Errorf("proved value %x does not match expected value %x", value, expected)
	}
	return nil
}

// OutputRootV0 is the version 0 output root committed to on L1.
func OutputRootV0(stateRoot, messagePasserStorageRoot, latestBlockhash common.Hash) common.Hash {
	var buf [128]byte
	copy(buf[32:], stateRoot[:])
	copy(buf[64:], messagePasserStorageRoot[:])
	copy(buf[96:], latestBlockhash[:])
	return crypto.Keccak256Hash(buf[:])
}
