package opstack

import (
	"encoding/binary"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

var (
	testPortal  = common.HexToAddress("0xbEb5Fc579115071764c7423A4f12eDde41f106Ed")
	testAccount = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
)

func opaqueDataV0(mint, value *big.Int, gas uint64, isCreation bool, data []byte) []byte {
	out := make([]byte, 0, 73+len(data))
	out = append(out, common.LeftPadBytes(mint.Bytes(), 32)...)
	out = append(out, common.LeftPadBytes(value.Bytes(), 32)...)
	out = binary.BigEndian.AppendUint64(out, gas)
	if isCreation {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	return append(out, data...)
}

func depositLog(t *testing.T, version uint64, opaque []byte, index uint) *types.Log {
	enc, err := abi.Arguments{{Type: bytesType}}.Pack(opaque)
	require.NoError(t, err)
	return &types.Log{
		Address: testPortal,
		Topics: []common.Hash{
			transactionDepositedEvent.Topic0,
			common.BytesToHash(testAccount[:]),
			common.BytesToHash(testAccount[:]),
			common.BigToHash(new(big.Int).SetUint64(version)),
		},
		Data:      enc,
		BlockHash: common.HexToHash("0x1234"),
		Index:     index,
	}
}

func TestTransactionDepositedTopic(t *testing.T) {
	require.Equal(t, common.HexToHash("0xb3813568d9991fc951961fcb4c784893574240a28925604d09fc577c55bb7c32"), transactionDepositedEvent.Topic0)
}

// cast keccak $(cast concat-hex 0x0000000000000000000000000000000000000000000000000000000000000001 $(cast keccak $(cast concat-hex 0xc00e5d67c2755389aded7d8b151cbd5bcdf7ed275ad5e028b664880fc7581c77 0x0000000000000000000000000000000000000000000000000000000000000004)))
// # 0x0586c503340591999b8b38bc9834bb16aec7d5bc00eb5587ab139c9ddab81977
func TestDepositSourceHashL1Info(t *testing.T) {
	actual := depositSourceHash(l1InfoDepositSourceDomain, common.HexToHash("0xc00e5d67c2755389aded7d8b151cbd5bcdf7ed275ad5e028b664880fc7581c77"), 4)
	require.Equal(t, "0x0586c503340591999b8b38bc9834bb16aec7d5bc00eb5587ab139c9ddab81977", actual.Hex())
}

func TestUserDepositSourceHash(t *testing.T) {
	blockHash := common.HexToHash("0x1234")
	depositID := crypto.Keccak256Hash(blockHash[:], common.LeftPadBytes([]byte{3}, 32))
	expected := crypto.Keccak256Hash(make([]byte, 32), depositID[:])
	require.Equal(t, expected, UserDepositSourceHash(blockHash, 3))
	require.NotEqual(t, expected, UserDepositSourceHash(blockHash, 4))
	require.NotEqual(t, expected, depositSourceHash(l1InfoDepositSourceDomain, blockHash, 3))
}

func TestUnmarshalDepositLogEvent(t *testing.T) {
	mint := big.NewInt(50_000_000_000_000_000)
	ev := depositLog(t, 0, opaqueDataV0(mint, mint, 100_000, false, nil), 3)

	dep, err := UnmarshalDepositLogEvent(ev)
	require.NoError(t, err)
	require.Equal(t, testAccount, dep.From)
	require.NotNil(t, dep.To)
	require.Equal(t, testAccount, *dep.To)
	require.Equal(t, 0, mint.Cmp(dep.Mint))
	require.Equal(t, 0, mint.Cmp(dep.Value))
	require.Equal(t, uint64(100_000), dep.Gas)
	require.Empty(t, dep.Data)
	require.Equal(t, UserDepositSourceHash(ev.BlockHash, 3), dep.SourceHash)

	tx := dep.Tx()
	require.Equal(t, uint8(types.DepositTxType), tx.Type())
	require.Equal(t, dep.SourceHash, tx.SourceHash())
	require.Equal(t, 0, mint.Cmp(tx.Mint()))
	require.Equal(t, 0, mint.Cmp(tx.Value()))
	require.Equal(t, uint64(100_000), tx.Gas())
	require.False(t, tx.IsSystemTx())
	require.Equal(t, tx.Hash(), dep.Hash())

	other := *dep
	other.SourceHash = UserDepositSourceHash(ev.BlockHash, 4)
	require.NotEqual(t, dep.Hash(), other.Hash())
}

func TestUnmarshalDepositLogEventCreation(t *testing.T) {
	ev := depositLog(t, 0, opaqueDataV0(common.Big0, common.Big0, 21_000, true, []byte{0x60, 0x00}), 0)
	dep, err := UnmarshalDepositLogEvent(ev)
	require.NoError(t, err)
	require.Nil(t, dep.To)
	require.Equal(t, []byte{0x60, 0x00}, dep.Data)
	require.Nil(t, dep.Tx().To())
	require.Nil(t, dep.Tx().Mint(), "zero mint is left out of the deposit tx")
}

func TestUnmarshalDepositLogEventErrors(t *testing.T) {
	_, err := UnmarshalDepositLogEvent(depositLog(t, 1, opaqueDataV0(common.Big1, common.Big1, 1, false, nil), 0))
	require.ErrorIs(t, err, ErrUnknownDepositVersion)

	_, err = UnmarshalDepositLogEvent(depositLog(t, 0, make([]byte, 72), 0))
	require.ErrorContains(t, err, "opaqueData length")

	invalid := opaqueDataV0(common.Big1, common.Big1, 1, false, nil)
	invalid[72] = 2
	_, err = UnmarshalDepositLogEvent(depositLog(t, 0, invalid, 0))
	require.ErrorContains(t, err, "isCreation")

	_, err = UnmarshalDepositLogEvent(&types.Log{Topics: []common.Hash{{}}})
	require.ErrorContains(t, err, "not a TransactionDeposited log")
}

func TestDepositsFromReceipt(t *testing.T) {
	one := big.NewInt(1)
	other := depositLog(t, 0, opaqueDataV0(one, one, 1, false, nil), 0)
	other.Address = common.HexToAddress("0x01")
	first := depositLog(t, 0, opaqueDataV0(one, one, 1, false, nil), 1)
	second := depositLog(t, 0, opaqueDataV0(one, one, 2, false, nil), 2)
	unrelated := &types.Log{Address: testPortal, Topics: []common.Hash{common.HexToHash("0xff")}, Index: 3}

	deposits, err := DepositsFromReceipt(&types.Receipt{Logs: []*types.Log{other, first, unrelated, second}}, testPortal)
	require.NoError(t, err)
	require.Len(t, deposits, 2)
	require.Equal(t, uint64(1), deposits[0].Gas)
	require.Equal(t, uint64(2), deposits[1].Gas)

	deposits, err = DepositsFromReceipt(&types.Receipt{}, testPortal)
	require.NoError(t, err)
	require.Empty(t, deposits)
}
