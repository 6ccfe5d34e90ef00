package service

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-multierror"
	"github.com/urfave/cli/v2"

	"github.com/opbridge/opbridge/op-bridge/flags"
	"github.com/opbridge/opbridge/op-bridge/opstack"
	oplog "github.com/opbridge/opbridge/op-service/log"
	opmetrics "github.com/opbridge/opbridge/op-service/metrics"
	"github.com/opbridge/opbridge/op-service/txmgr"
)

var ErrUnknownNetwork = errors.New("unknown network")

// NetworkConfig is one named entry of the network config file. Empty values are ignored.
type NetworkConfig struct {
	L1EthRpc              string `toml:"l1-rpc"`
	L2EthRpc              string `toml:"l2-rpc"`
	PortalAddress         string `toml:"portal"`
	L2OutputOracleAddress string `toml:"oracle"`
	ProofSystem           string `toml:"proof-system"`
}

type networkFile struct {
	Networks map[string]NetworkConfig `toml:"networks"`
}

// LoadNetwork reads the network called name from the TOML file at path:
//
//	[networks.sepolia]
//	l1-rpc = "https://..."
//	l2-rpc = "https://..."
//	portal = "0x..."
//	proof-system = "games"
func LoadNetwork(path string, name string) (NetworkConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return NetworkConfig{}, fmt.Errorf("failed to read network config: %w", err)
	}
	var file networkFile
	md, err := toml.Decode(string(data), &file)
	if err != nil {
		return NetworkConfig{}, fmt.Errorf("failed to decode network config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return NetworkConfig{}, fmt.Errorf("unknown keys in network config %s: %v", path, undecoded)
	}
	network, ok := file.Networks[name]
	if !ok {
		names := make([]string, 0, len(file.Networks))
		for n := range file.Networks {
			names = append(names, n)
		}
		sort.Strings(names)
		return NetworkConfig{}, fmt.Errorf("%w %q in %s, available: %v", ErrUnknownNetwork, name, path, names)
	}
	return network, nil
}

type CLIConfig struct {
	L1EthRpc              string
	L2EthRpc              string
	PortalAddress         string
	L2OutputOracleAddress string
	ProofSystem           string

	DepositGasLimit    uint64
	WithdrawalGasLimit uint64
	PollInterval       time.Duration
	MaxPollInterval    time.Duration

	TxMgrConfig   txmgr.CLIConfig
	LogConfig     oplog.CLIConfig
	MetricsConfig opmetrics.CLIConfig
}

// Check reports every invalid setting at once.
func (c *CLIConfig) Check() error {
	var result *multierror.Error
	if c.L1EthRpc == "" {
		result = multierror.Append(result, errors.New("L1 RPC URL is required"))
	}
	if c.L2EthRpc == "" {
		result = multierror.Append(result, errors.New("L2 RPC URL is required"))
	}
	if !common.IsHexAddress(c.PortalAddress) {
		result = multierror.Append(result, fmt.Errorf("invalid portal address %q", c.PortalAddress))
	}
	var proofSystem opstack.ProofSystem
	if err := proofSystem.Set(c.ProofSystem); err != nil {
		result = multierror.Append(result, err)
	}
	if c.L2OutputOracleAddress != "" && !common.IsHexAddress(c.L2OutputOracleAddress) {
		result = multierror.Append(result, fmt.Errorf("invalid L2OutputOracle address %q", c.L2OutputOracleAddress))
	} else if proofSystem == opstack.Oracle && c.L2OutputOracleAddress == "" {
		result = multierror.Append(result, errors.New("L2OutputOracle address is required by the oracle proof system"))
	}
	if c.PollInterval <= 0 {
		result = multierror.Append(result, errors.New("poll interval must be positive"))
	} else if c.MaxPollInterval < c.PollInterval {
		result = multierror.Append(result, fmt.Errorf("max poll interval %s is lower than poll interval %s", c.MaxPollInterval, c.PollInterval))
	}
	if err := c.TxMgrConfig.Check(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := c.MetricsConfig.Check(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// OpStackConfig converts a checked CLIConfig to the chain client config.
func (c *CLIConfig) OpStackConfig() (opstack.Config, error) {
	cfg := opstack.Config{
		Portal:             common.HexToAddress(c.PortalAddress),
		DepositGasLimit:    c.DepositGasLimit,
		WithdrawalGasLimit: c.WithdrawalGasLimit,
		PollInterval:       c.PollInterval,
		MaxPollInterval:    c.MaxPollInterval,
	}
	if c.L2OutputOracleAddress != "" {
		cfg.L2OutputOracle = common.HexToAddress(c.L2OutputOracleAddress)
	}
	if err := cfg.ProofSystem.Set(c.ProofSystem); err != nil {
		return opstack.Config{}, err
	}
	return cfg, cfg.Check()
}

// applyNetwork fills every setting not given as a flag from the network.
func (c *CLIConfig) applyNetwork(n NetworkConfig, isSet func(name string) bool) {
	apply := func(flag cli.Flag, dst *string, value string) {
		if value == "" || slices.ContainsFunc(flag.Names(), isSet) {
			return
		}
		*dst = value
	}
	apply(flags.L1EthRpcFlag, &c.L1EthRpc, n.L1EthRpc)
	apply(flags.L2EthRpcFlag, &c.L2EthRpc, n.L2EthRpc)
	apply(flags.PortalAddressFlag, &c.PortalAddress, n.PortalAddress)
	apply(flags.L2OutputOracleAddressFlag, &c.L2OutputOracleAddress, n.L2OutputOracleAddress)
	apply(flags.ProofSystemFlag, &c.ProofSystem, n.ProofSystem)
}

func NewConfig(ctx *cli.Context) (*CLIConfig, error) {
	cfg := &CLIConfig{
		L1EthRpc:              ctx.String(flags.L1EthRpcFlag.Name),
		L2EthRpc:              ctx.String(flags.L2EthRpcFlag.Name),
		PortalAddress:         ctx.String(flags.PortalAddressFlag.Name),
		L2OutputOracleAddress: ctx.String(flags.L2OutputOracleAddressFlag.Name),
		ProofSystem:           ctx.String(flags.ProofSystemFlag.Name),
		DepositGasLimit:       ctx.Uint64(flags.DepositGasLimitFlag.Name),
		WithdrawalGasLimit:    ctx.Uint64(flags.WithdrawalGasLimitFlag.Name),
		PollInterval:          ctx.Duration(flags.PollIntervalFlag.Name),
		MaxPollInterval:       ctx.Duration(flags.MaxPollIntervalFlag.Name),

		TxMgrConfig:   txmgr.ReadCLIConfig(ctx),
		LogConfig:     oplog.ReadCLIConfig(ctx),
		MetricsConfig: opmetrics.ReadCLIConfig(ctx),
	}

	path := ctx.Path(flags.NetworkConfigFlag.Name)
	name := ctx.String(flags.NetworkFlag.Name)
	switch {
	case path != "" && name != "":
		network, err := LoadNetwork(path, name)
		if err != nil {
			return nil, err
		}
		cfg.applyNetwork(network, ctx.IsSet)
	case path != "":
		return nil, fmt.Errorf("flag %s is required with %s", flags.NetworkFlag.Name, flags.NetworkConfigFlag.Name)
	case name != "":
		return nil, fmt.Errorf("flag %s is required with %s", flags.NetworkConfigFlag.Name, flags.NetworkFlag.Name)
	}
	return cfg, nil
}
