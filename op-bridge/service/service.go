package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/opbridge/opbridge/op-bridge/bridge"
	"github.com/opbridge/opbridge/op-bridge/metrics"
	"github.com/opbridge/opbridge/op-bridge/opstack"
	"github.com/opbridge/opbridge/op-service/dial"
	"github.com/opbridge/opbridge/op-service/eth"
	opmetrics "github.com/opbridge/opbridge/op-service/metrics"
	"github.com/opbridge/opbridge/op-service/txmgr"
)

var ErrAlreadyStopped = errors.New("already stopped")

// BridgeService owns the connections to both chains and runs transfers of one account.
type BridgeService struct {
	Log     log.Logger
	Metrics metrics.Metricer
	Version string

	Account  common.Address
	L1Client *ethclient.Client
	L2Client *ethclient.Client
	Client   bridge.ChainClient

	out    io.Writer
	proofs *gethclient.Client
	l1Tx   *txmgr.SimpleTxManager
	l2Tx   *txmgr.SimpleTxManager

	metricsSrv *opmetrics.Server

	stopped atomic.Bool
}

// BridgeServiceFromCLIConfig dials both chains and sets up the service. Progress output goes to out.
func BridgeServiceFromCLIConfig(ctx context.Context, version string, cfg *CLIConfig, l log.Logger, out io.Writer) (*BridgeService, error) {
	var bs BridgeService
	if err := bs.initFromCLIConfig(ctx, version, cfg, l, out); err != nil {
		return nil, errors.Join(err, bs.Stop(ctx))
	}
	return &bs, nil
}

func (bs *BridgeService) initFromCLIConfig(ctx context.Context, version string, cfg *CLIConfig, l log.Logger, out io.Writer) error {
	bs.Version = version
	bs.Log = l
	bs.out = out

	bs.initMetrics(cfg)

	if err := bs.initRPCClients(ctx, cfg); err != nil {
		return err
	}
	if err := bs.initTxManagers(cfg); err != nil {
		return fmt.Errorf("failed to init tx managers: %w", err)
	}
	if err := bs.initChainClient(cfg); err != nil {
		return fmt.Errorf("failed to init chain client: %w", err)
	}
	if err := bs.initMetricsServer(cfg); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	bs.Metrics.RecordInfo(bs.Version)
	bs.Metrics.RecordUp()
	return nil
}

func (bs *BridgeService) initMetrics(cfg *CLIConfig) {
	if cfg.MetricsConfig.Enabled {
		bs.Metrics = metrics.NewMetrics("default")
	} else {
		bs.Metrics = metrics.NoopMetrics
	}
}

// initRPCClients dials both chains concurrently.
func (bs *BridgeService) initRPCClients(ctx context.Context, cfg *CLIConfig) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		l1, err := dial.DialEthClientWithTimeout(gctx, dial.DefaultDialTimeout, bs.Log, cfg.L1EthRpc,
			dial.WithRPCMetrics(string(bridge.L1), bs.Metrics))
		if err != nil {
			return fmt.Errorf("failed to dial L1 rpc: %w", err)
		}
		bs.L1Client = l1
		return nil
	})
	g.Go(func() error {
		l2, err := dial.DialRPCClientWithTimeout(gctx, dial.DefaultDialTimeout, bs.Log, cfg.L2EthRpc,
			dial.WithRPCMetrics(string(bridge.L2), bs.Metrics))
		if err != nil {
			return fmt.Errorf("failed to dial L2 rpc: %w", err)
		}
		bs.L2Client = ethclient.NewClient(l2)
		bs.proofs = gethclient.New(l2)
		return nil
	})
	return g.Wait()
}

func (bs *BridgeService) initTxManagers(cfg *CLIConfig) error {
	newTxManager := func(chain bridge.Chain, backend txmgr.ETHBackend) (*txmgr.SimpleTxManager, error) {
		l := bs.Log.New("chain", chain)
		conf, err := txmgr.NewConfig(cfg.TxMgrConfig, backend, l)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", chain.Label(), err)
		}
		return txmgr.NewSimpleTxManagerFromConfig("bridge-"+string(chain), l, bs.Metrics.TxMetrics(string(chain)), conf), nil
	}
	var err error
	if bs.l1Tx, err = newTxManager(bridge.L1, bs.L1Client); err != nil {
		return err
	}
	if bs.l2Tx, err = newTxManager(bridge.L2, bs.L2Client); err != nil {
		return err
	}
	bs.Account = bs.l1Tx.From()
	return nil
}

func (bs *BridgeService) initChainClient(cfg *CLIConfig) error {
	opCfg, err := cfg.OpStackConfig()
	if err != nil {
		return err
	}
	if bridge.IsTerminal(bs.out) {
		opCfg.Progress = bs.out
	}
	client, err := opstack.NewClient(opCfg, bs.Log, bs.L1Client, bs.L2Client, bs.proofs, bs.l1Tx, bs.l2Tx)
	if err != nil {
		return err
	}
	bs.Client = client
	return nil
}

func (bs *BridgeService) initMetricsServer(cfg *CLIConfig) error {
	if !cfg.MetricsConfig.Enabled {
		bs.Log.Info("metrics disabled")
		return nil
	}
	m, ok := bs.Metrics.(opmetrics.RegistryMetricer)
	if !ok {
		return fmt.Errorf("metrics were enabled, but metricer %T does not expose registry for metrics-server", bs.Metrics)
	}
	bs.Log.Debug("starting metrics server", "addr", cfg.MetricsConfig.ListenAddr, "port", cfg.MetricsConfig.ListenPort)
	metricsSrv, err := opmetrics.StartServer(m.Registry(), cfg.MetricsConfig.ListenAddr, cfg.MetricsConfig.ListenPort)
	if err != nil {
		return err
	}
	bs.Log.Info("started metrics server", "addr", metricsSrv.Addr())
	bs.metricsSrv = metricsSrv
	return nil
}

// Transfer moves amount in the given direction and returns the final report.
func (bs *BridgeService) Transfer(ctx context.Context, direction bridge.Direction, amount eth.ETH) (bridge.Report, error) {
	cfg := bridge.TransferConfig{Account: bs.Account, Amount: amount}
	reporter := bridge.NewReporter(bs.out)
	bs.Log.Info("Starting transfer", "direction", direction, "account", bs.Account, "amount", amount)
	switch direction {
	case bridge.DirectionDeposit:
		return bridge.NewDepositOrchestrator(cfg, bs.Client, bs.Log, bs.Metrics, reporter).Run(ctx)
	case bridge.DirectionWithdrawal:
		return bridge.NewWithdrawalOrchestrator(cfg, bs.Client, bs.Log, bs.Metrics, reporter).Run(ctx)
	default:
		return bridge.Report{}, fmt.Errorf("unknown direction %q", direction)
	}
}

func (bs *BridgeService) Stop(ctx context.Context) error {
	if bs.stopped.Load() {
		return ErrAlreadyStopped
	}
	bs.Log.Info("Stopping bridge")

	var result error
	if bs.metricsSrv != nil {
		if err := bs.metricsSrv.Stop(ctx); err != nil {
			result = errors.Join(result, fmt.Errorf("failed to stop metrics server: %w", err))
		}
	}
	if bs.L1Client != nil {
		bs.L1Client.Close()
	}
	if bs.L2Client != nil {
		bs.L2Client.Close()
	}
	bs.stopped.Store(true)
	bs.Log.Info("Bridge stopped")
	return result
}
