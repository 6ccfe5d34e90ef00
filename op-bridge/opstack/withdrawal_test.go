package opstack

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/opbridge/opbridge/op-bridge/bridge"
	"github.com/opbridge/opbridge/op-service/predeploys"
)

var bytes32Type, _ = abi.NewType("bytes32", "", nil)

func testWithdrawal(t *testing.T) bridge.Withdrawal {
	w := bridge.Withdrawal{
		Nonce:    new(big.Int).Lsh(big.NewInt(1), 240),
		Sender:   testAccount,
		Target:   testAccount,
		Value:    big.NewInt(1_000_000_000_000_000_000),
		GasLimit: big.NewInt(100_000),
		Data:     []byte{},
	}
	hash, err := WithdrawalHash(w)
	require.NoError(t, err)
	w.Hash = hash
	return w
}

func messagePassedLog(t *testing.T, w bridge.Withdrawal) *types.Log {
	data, err := abi.Arguments{
		{Type: uint256Type}, {Type: uint256Type}, {Type: bytesType}, {Type: bytes32Type},
	}.Pack(w.Value, w.GasLimit, []byte(w.Data), [32]byte(w.Hash))
	require.NoError(t, err)
	return &types.Log{
		Address: predeploys.L2ToL1MessagePasserAddr,
		Topics: []common.Hash{
			messagePassedEvent.Topic0,
			common.BigToHash(w.Nonce),
			common.BytesToHash(w.Sender[:]),
			common.BytesToHash(w.Target[:]),
		},
		Data: data,
	}
}

func TestMessagePassedTopic(t *testing.T) {
	require.Equal(t, crypto.Keccak256Hash([]byte("MessagePassed(uint256,address,address,uint256,uint256,bytes,bytes32)")), messagePassedEvent.Topic0)
}

func TestWithdrawalHash(t *testing.T) {
	w := testWithdrawal(t)
	enc, err := withdrawalHashArgs.Pack(w.Nonce, w.Sender, w.Target, w.Value, w.GasLimit, []byte{})
	require.NoError(t, err)
	require.Len(t, enc, 32*7, "six head words plus the length of the empty data")
	require.Equal(t, crypto.Keccak256Hash(enc), w.Hash)

	other := w
	other.Nonce = new(big.Int).Add(w.Nonce, common.Big1)
	otherHash, err := WithdrawalHash(other)
	require.NoError(t, err)
	require.NotEqual(t, w.Hash, otherHash)
}

func TestParseMessagePassed(t *testing.T) {
	w := testWithdrawal(t)
	unrelated := &types.Log{Address: predeploys.L2ToL1MessagePasserAddr, Topics: []common.Hash{common.HexToHash("0x01")}}
	parsed, err := ParseMessagePassed(&types.Receipt{Logs: []*types.Log{unrelated, messagePassedLog(t, w)}})
	require.NoError(t, err)
	require.Equal(t, w.Hash, parsed.Hash)
	require.Equal(t, 0, w.Nonce.Cmp(parsed.Nonce))
	require.Equal(t, 0, w.Value.Cmp(parsed.Value))
	require.Equal(t, 0, w.GasLimit.Cmp(parsed.GasLimit))
	require.Equal(t, w.Sender, parsed.Sender)
	require.Equal(t, w.Target, parsed.Target)
	require.Empty(t, parsed.Data)
}

func TestParseMessagePassedErrors(t *testing.T) {
	_, err := ParseMessagePassed(&types.Receipt{})
	require.ErrorIs(t, err, ErrNoMessagePassed)

	w := testWithdrawal(t)
	w.Hash = common.HexToHash("0xbad")
	_, err = ParseMessagePassed(&types.Receipt{Logs: []*types.Log{messagePassedLog(t, w)}})
	require.ErrorIs(t, err, ErrWithdrawalHashMismatch)

	// emitted by another contract
	ev := messagePassedLog(t, testWithdrawal(t))
	ev.Address = common.HexToAddress("0x01")
	_, err = ParseMessagePassed(&types.Receipt{Logs: []*types.Log{ev}})
	require.ErrorIs(t, err, ErrNoMessagePassed)
}

func TestStorageSlotOfWithdrawalHash(t *testing.T) {
	hash := common.HexToHash("0xabcd")
	require.Equal(t, crypto.Keccak256Hash(hash[:], make([]byte, 32)), StorageSlotOfWithdrawalHash(hash))
}

func TestOutputRootV0(t *testing.T) {
	state, storage, block := common.HexToHash("0x01"), common.HexToHash("0x02"), common.HexToHash("0x03")
	require.Equal(t, crypto.Keccak256Hash(make([]byte, 32), state[:], storage[:], block[:]), OutputRootV0(state, storage, block))
}

// proofList collects trie proof nodes in the eth_getProof format.
type proofList []string

func (n *proofList) Put(key []byte, value []byte) error {
	*n = append(*n, hexutil.Encode(value))
	return nil
}

func (n *proofList) Delete(key []byte) error {
	panic("not supported")
}

// messagePasserState is an L2 state holding withdrawals in the message passer storage.
type messagePasserState struct {
	stateRoot   common.Hash
	storageRoot common.Hash
	storage     *trie.Trie
	accounts    *trie.Trie
}

func newMessagePasserState(t *testing.T, withdrawals ...common.Hash) *messagePasserState {
	db := triedb.NewDatabase(rawdb.NewMemoryDatabase(), nil)
	storage := trie.NewEmpty(db)
	one, err := rlp.EncodeToBytes([]byte{1})
	require.NoError(t, err)
	for _, h := range withdrawals {
		slot := StorageSlotOfWithdrawalHash(h)
		storage.MustUpdate(crypto.Keccak256(slot[:]), one)
	}
	storageRoot := storage.Hash()

	account, err := rlp.EncodeToBytes(&types.StateAccount{
		Nonce:    0,
		Balance:  uint256.NewInt(0),
		Root:     storageRoot,
		CodeHash: types.EmptyCodeHash[:],
	})
	require.NoError(t, err)
	accounts := trie.NewEmpty(db)
	accounts.MustUpdate(crypto.Keccak256(predeploys.L2ToL1MessagePasserAddr[:]), account)
	return &messagePasserState{
		stateRoot:   accounts.Hash(),
		storageRoot: storageRoot,
		storage:     storage,
		accounts:    accounts,
	}
}

func (s *messagePasserState) GetProof(ctx context.Context, account common.Address, keys []string, blockNumber *big.Int) (*gethclient.AccountResult, error) {
	var accountProof proofList
	if err := s.accounts.Prove(crypto.Keccak256(account[:]), &accountProof); err != nil {
		return nil, err
	}
	result := &gethclient.AccountResult{
		Address:      account,
		AccountProof: accountProof,
		Balance:      new(big.Int),
		CodeHash:     types.EmptyCodeHash,
		StorageHash:  s.storageRoot,
	}
	for _, key := range keys {
		var storageProof proofList
		if err := s.storage.Prove(crypto.Keccak256(common.FromHex(key)), &storageProof); err != nil {
			return nil, err
		}
		value := new(big.Int)
		if v, err := s.storage.Get(crypto.Keccak256(common.FromHex(key))); err == nil && len(v) > 0 {
			value.SetInt64(1)
		}
		result.StorageProof = append(result.StorageProof, gethclient.StorageResult{Key: key, Value: value, Proof: storageProof})
	}
	return result, nil
}

func TestGetWithdrawalProof(t *testing.T) {
	w := testWithdrawal(t)
	state := newMessagePasserState(t, common.HexToHash("0x01"), w.Hash, common.HexToHash("0x02"))
	header := &types.Header{Number: big.NewInt(120), Root: state.stateRoot, Difficulty: common.Big0}

	nodes, storageRoot, err := GetWithdrawalProof(context.Background(), state, w, header)
	require.NoError(t, err)
	require.Equal(t, state.storageRoot, storageRoot)
	require.NotEmpty(t, nodes)
}

func TestGetWithdrawalProofErrors(t *testing.T) {
	w := testWithdrawal(t)

	t.Run("withdrawal missing", func(t *testing.T) {
		state := newMessagePasserState(t, common.HexToHash("0x01"))
		header := &types.Header{Number: big.NewInt(120), Root: state.stateRoot}
		_, _, err := GetWithdrawalProof(context.Background(), state, w, header)
		require.ErrorContains(t, err, "not present")
	})

	t.Run("wrong state root", func(t *testing.T) {
		state := newMessagePasserState(t, w.Hash)
		header := &types.Header{Number: big.NewInt(120), Root: common.HexToHash("0xdead")}
		_, _, err := GetWithdrawalProof(context.Background(), state, w, header)
		require.ErrorContains(t, err, "failed to validate account")
	})
}
