package opstack

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/lmittmann/w3"

	"github.com/opbridge/opbridge/op-bridge/bridge"
)

// ProofSystem selects how L2 outputs are committed to on L1.
type ProofSystem string

const (
	// Games is the fault proof system: OptimismPortal2 with a DisputeGameFactory.
	Games ProofSystem = "games"
	// Oracle is the legacy permissioned L2OutputOracle.
	Oracle ProofSystem = "oracle"
)

var ProofSystems = []ProofSystem{Games, Oracle}

var ErrUnknownProofSystem = errors.New("unknown proof system")

func (p ProofSystem) String() string {
	return string(p)
}

func (p *ProofSystem) Set(value string) error {
	for _, s := range ProofSystems {
		if strings.EqualFold(string(s), value) {
			*p = s
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownProofSystem, value)
}

func (p ProofSystem) Check() error {
	for _, s := range ProofSystems {
		if p == s {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownProofSystem, string(p))
}

// L1Client is the L1 chain access of the Client. *ethclient.Client satisfies it.
type L1Client interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// commitment is an L2 output published on L1.
type commitment struct {
	Index         *big.Int
	L2BlockNumber uint64
	OutputRoot    common.Hash
}

// challengeStatus is the progress of a proven withdrawal towards finalization.
type challengeStatus struct {
	Finalizable bool
	// Remaining is an estimate of the time left, zero when unknown or elapsed.
	Remaining time.Duration
	Period    time.Duration
}

// outputSource reads L2 output commitments and withdrawal maturity from L1.
type outputSource interface {
	// covering returns a commitment at or after l2Block, or nil when none is published yet.
	covering(ctx context.Context, l2Block uint64) (*commitment, error)
	challenge(ctx context.Context, w bridge.Withdrawal, proofSubmitter common.Address) (challengeStatus, error)
}

type contractCaller struct {
	l1 L1Client
}

func (c contractCaller) call(ctx context.Context, to common.Address, fn *w3.Func, args []any, returns ...any) error {
	input, err := fn.EncodeArgs(args...)
	if err != nil {
		return fmt.Errorf("failed to encode call: %w", err)
	}
	output, err := c.l1.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, nil)
	if err != nil {
		return err
	}
	if len(returns) == 0 {
		return nil
	}
	if err := fn.DecodeReturns(output, returns...); err != nil {
		return fmt.Errorf("failed to decode returns: %w", err)
	}
	return nil
}

func (c contractCaller) headTime(ctx context.Context) (time.Time, error) {
	head, err := c.l1.HeaderByNumber(ctx, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get L1 head: %w", err)
	}
	return time.Unix(int64(head.Time), 0), nil
}

// IsRevert reports whether err is an execution revert returned by eth_call.
func IsRevert(err error) bool {
	if err == nil {
		return false
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == 3 {
		return true
	}
	return strings.Contains(err.Error(), "execution reverted")
}

func remaining(provenAt time.Time, period time.Duration, now time.Time) time.Duration {
	left := provenAt.Add(period).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// gamesSource reads dispute games of the respected game type.
type gamesSource struct {
	contractCaller
	portal common.Address

	mu      sync.Mutex
	factory common.Address
}

func (g *gamesSource) disputeGameFactory(ctx context.Context) (common.Address, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.factory != (common.Address{}) {
		return g.factory, nil
	}
	var factory common.Address
	if err := g.call(ctx, g.portal, disputeGameFactoryFn, nil, &factory); err != nil {
		return common.Address{}, fmt.Errorf("failed to fetch dispute game factory address from portal: %w", err)
	}
	g.factory = factory
	return factory, nil
}

// latestGame returns the latest game of the respected game type, nil when there is none.
func (g *gamesSource) latestGame(ctx context.Context) (*gameSearchResult, error) {
	factory, err := g.disputeGameFactory(ctx)
	if err != nil {
		return nil, err
	}
	var gameType uint32
	if err := g.call(ctx, g.portal, respectedGameTypeFn, nil, &gameType); err != nil {
		return nil, fmt.Errorf("failed to get respected game type: %w", err)
	}
	var count big.Int
	if err := g.call(ctx, factory, gameCountFn, nil, &count); err != nil {
		return nil, fmt.Errorf("failed to get game count: %w", err)
	}
	if count.Sign() == 0 {
		return nil, nil
	}
	searchStart := new(big.Int).Sub(&count, common.Big1)
	var games []gameSearchResult
	if err := g.call(ctx, factory, findLatestGamesFn, []any{gameType, searchStart, common.Big1}, &games); err != nil {
		return nil, fmt.Errorf("failed to get latest games: %w", err)
	}
	if len(games) == 0 {
		return nil, nil
	}
	return &games[0], nil
}

func (g *gamesSource) covering(ctx context.Context, l2Block uint64) (*commitment, error) {
	game, err := g.latestGame(ctx)
	if err != nil || game == nil {
		return nil, err
	}
	if len(game.ExtraData) < 32 {
		return nil, fmt.Errorf("game %s has malformed extra data: %x", game.Index, game.ExtraData)
	}
	gameBlock := new(big.Int).SetBytes(game.ExtraData[0:32])
	if !gameBlock.IsUint64() || gameBlock.Uint64() < l2Block {
		return nil, nil
	}
	return &commitment{
		Index:         game.Index,
		L2BlockNumber: gameBlock.Uint64(),
		OutputRoot:    game.RootClaim,
	}, nil
}

func (g *gamesSource) challenge(ctx context.Context, w bridge.Withdrawal, proofSubmitter common.Address) (challengeStatus, error) {
	err := g.call(ctx, g.portal, checkWithdrawalFn, []any{[32]byte(w.Hash), proofSubmitter})
	if err == nil {
		return challengeStatus{Finalizable: true}, nil
	} else if !IsRevert(err) {
		return challengeStatus{}, fmt.Errorf("failed to check withdrawal: %w", err)
	}

	var (
		proxy    common.Address
		provenAt uint64
		delay    big.Int
	)
	if err := g.call(ctx, g.portal, provenWithdrawals2Fn, []any{[32]byte(w.Hash), proofSubmitter}, &proxy, &provenAt); err != nil {
		return challengeStatus{}, fmt.Errorf("failed to get proven withdrawal: %w", err)
	}
	if provenAt == 0 {
		return challengeStatus{}, fmt.Errorf("withdrawal %s is not proven by %s", w.Hash, proofSubmitter)
	}
	if err := g.call(ctx, g.portal, proofMaturityDelaySecondsFn, nil, &delay); err != nil {
		return challengeStatus{}, fmt.Errorf("failed to get proof maturity delay: %w", err)
	}
	now, err := g.headTime(ctx)
	if err != nil {
		return challengeStatus{}, err
	}
	period := time.Duration(delay.Int64()) * time.Second
	return challengeStatus{
		Remaining: remaining(time.Unix(int64(provenAt), 0), period, now),
		Period:    period,
	}, nil
}

// oracleSource reads outputs proposed to the L2OutputOracle.
type oracleSource struct {
	contractCaller
	portal common.Address
	oracle common.Address
}

func (o *oracleSource) covering(ctx context.Context, l2Block uint64) (*commitment, error) {
	var latest big.Int
	if err := o.call(ctx, o.oracle, latestBlockNumberFn, nil, &latest); err != nil {
		return nil, fmt.Errorf("failed to get latest L2 output block: %w", err)
	}
	if !latest.IsUint64() || latest.Uint64() < l2Block {
		return nil, nil
	}
	var index big.Int
	if err := o.call(ctx, o.oracle, getL2OutputIndexAfterFn, []any{new(big.Int).SetUint64(l2Block)}, &index); err != nil {
		return nil, fmt.Errorf("failed to get l2OutputIndex: %w", err)
	}
	var (
		outputRoot    [32]byte
		timestamp     big.Int
		l2BlockNumber big.Int
	)
	if err := o.call(ctx, o.oracle, getL2OutputFn, []any{&index}, &outputRoot, &timestamp, &l2BlockNumber); err != nil {
		return nil, fmt.Errorf("failed to get L2 output %s: %w", &index, err)
	}
	if !l2BlockNumber.IsUint64() || l2BlockNumber.Uint64() < l2Block {
		return nil, fmt.Errorf("L2 output %s at block %s does not cover block %d", &index, &l2BlockNumber, l2Block)
	}
	return &commitment{
		Index:         &index,
		L2BlockNumber: l2BlockNumber.Uint64(),
		OutputRoot:    outputRoot,
	}, nil
}

func (o *oracleSource) challenge(ctx context.Context, w bridge.Withdrawal, _ common.Address) (challengeStatus, error) {
	var (
		outputRoot    [32]byte
		provenAt      big.Int
		l2OutputIndex big.Int
		period        big.Int
	)
	if err := o.call(ctx, o.portal, provenWithdrawalsFn, []any{[32]byte(w.Hash)}, &outputRoot, &provenAt, &l2OutputIndex); err != nil {
		return challengeStatus{}, fmt.Errorf("failed to get proven withdrawal: %w", err)
	}
	if provenAt.Sign() == 0 {
		return challengeStatus{}, fmt.Errorf("withdrawal %s is not proven", w.Hash)
	}
	if err := o.call(ctx, o.oracle, finalizationPeriodSecondsFn, nil, &period); err != nil {
		return challengeStatus{}, fmt.Errorf("failed to get finalization period: %w", err)
	}
	now, err := o.headTime(ctx)
	if err != nil {
		return challengeStatus{}, err
	}
	periodDur := time.Duration(period.Int64()) * time.Second
	finalizableAt := time.Unix(provenAt.Int64(), 0).Add(periodDur)
	return challengeStatus{
		// finalization requires block.timestamp > provenAt + period
		Finalizable: now.After(finalizableAt),
		Remaining:   remaining(time.Unix(provenAt.Int64(), 0), periodDur, now),
		Period:      periodDur,
	}, nil
}
