package opstack

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lmittmann/w3"
)

const withdrawalTxTuple = "(uint256 Nonce, address Sender, address Target, uint256 Value, uint256 GasLimit, bytes Data)"

// OptimismPortal
var (
	depositTransactionFn = w3.MustNewFunc("depositTransaction(address _to, uint256 _value, uint64 _gasLimit, bool _isCreation, bytes _data)", "")
	proveWithdrawalFn    = w3.MustNewFunc("proveWithdrawalTransaction("+
		withdrawalTxTuple+","+
		"uint256,"+
		"(bytes32 Version, bytes32 StateRoot, bytes32 MessagePasserStorageRoot, bytes32 LatestBlockhash),"+
		"bytes[])", "")
	finalizeWithdrawalFn = w3.MustNewFunc("finalizeWithdrawalTransaction("+withdrawalTxTuple+")", "")

	transactionDepositedEvent = w3.MustNewEvent("TransactionDeposited(address indexed from, address indexed to, uint256 indexed version, bytes opaqueData)")
)

// OptimismPortal2 and DisputeGameFactory
var (
	disputeGameFactoryFn        = w3.MustNewFunc("disputeGameFactory()", "address")
	respectedGameTypeFn         = w3.MustNewFunc("respectedGameType()", "uint32")
	checkWithdrawalFn           = w3.MustNewFunc("checkWithdrawal(bytes32 _withdrawalHash, address _proofSubmitter)", "")
	provenWithdrawals2Fn        = w3.MustNewFunc("provenWithdrawals(bytes32, address)", "address disputeGameProxy, uint64 timestamp")
	proofMaturityDelaySecondsFn = w3.MustNewFunc("proofMaturityDelaySeconds()", "uint256")

	gameCountFn       = w3.MustNewFunc("gameCount()", "uint256")
	findLatestGamesFn = w3.MustNewFunc("findLatestGames(uint32 _gameType, uint256 _start, uint256 _n)",
		"(uint256 index, bytes32 metadata, uint64 timestamp, bytes32 rootClaim, bytes extraData)[] games_")
)

// OptimismPortal (legacy) and L2OutputOracle
var (
	provenWithdrawalsFn         = w3.MustNewFunc("provenWithdrawals(bytes32)", "bytes32 outputRoot, uint128 timestamp, uint128 l2OutputIndex")
	latestBlockNumberFn         = w3.MustNewFunc("latestBlockNumber()", "uint256")
	getL2OutputIndexAfterFn     = w3.MustNewFunc("getL2OutputIndexAfter(uint256 _l2BlockNumber)", "uint256")
	getL2OutputFn               = w3.MustNewFunc("getL2Output(uint256 _l2OutputIndex)", "bytes32 outputRoot, uint128 timestamp, uint128 l2BlockNumber")
	finalizationPeriodSecondsFn = w3.MustNewFunc("FINALIZATION_PERIOD_SECONDS()", "uint256")
)

// L2ToL1MessagePasser
var (
	initiateWithdrawalFn = w3.MustNewFunc("initiateWithdrawal(address _target, uint256 _gasLimit, bytes _data)", "")
	messagePassedEvent   = w3.MustNewEvent("MessagePassed(uint256 indexed nonce, address indexed sender, address indexed target, uint256 value, uint256 gasLimit, bytes data, bytes32 withdrawalHash)")
)

type withdrawalTransaction struct {
	Nonce    *big.Int
	Sender   common.Address
	Target   common.Address
	Value    *big.Int
	GasLimit *big.Int
	Data     []byte
}

type outputRootProof struct {
	Version                  [32]byte
	StateRoot                [32]byte
	MessagePasserStorageRoot [32]byte
	LatestBlockhash          [32]byte
}

type gameSearchResult struct {
	Index     *big.Int
	Metadata  [32]byte
	Timestamp uint64
	RootClaim [32]byte
	ExtraData []byte
}
