package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	opservice "github.com/opbridge/opbridge/op-service"
	oplog "github.com/opbridge/opbridge/op-service/log"
	opmetrics "github.com/opbridge/opbridge/op-service/metrics"
	"github.com/opbridge/opbridge/op-service/txmgr"
)

const EnvVarPrefix = "OP_BRIDGE"

func prefixEnvVars(name string) []string {
	return opservice.PrefixEnvVar(EnvVarPrefix, name)
}

var (
	// Network Flags, may instead be provided by a network config file
	L1EthRpcFlag = &cli.StringFlag{
		Name:    "l1-eth-rpc",
		Usage:   "HTTP provider URL for L1",
		EnvVars: prefixEnvVars("L1_ETH_RPC"),
	}
	L2EthRpcFlag = &cli.StringFlag{
		Name:    "l2-eth-rpc",
		Usage:   "HTTP provider URL for L2",
		EnvVars: prefixEnvVars("L2_ETH_RPC"),
	}
	PortalAddressFlag = &cli.StringFlag{
		Name:    "portal-address",
		Usage:   "Address of the OptimismPortal contract on L1",
		EnvVars: prefixEnvVars("PORTAL_ADDRESS"),
	}
	L2OutputOracleAddressFlag = &cli.StringFlag{
		Name:    "l2-output-oracle-address",
		Usage:   "Address of the L2OutputOracle contract on L1, required by the oracle proof system",
		EnvVars: prefixEnvVars("L2_OUTPUT_ORACLE_ADDRESS"),
	}
	ProofSystemFlag = &cli.StringFlag{
		Name:    "proof-system",
		Usage:   "How withdrawals are proven on L1: 'games' (dispute games, OptimismPortal2) or 'oracle' (L2OutputOracle)",
		Value:   "games",
		EnvVars: prefixEnvVars("PROOF_SYSTEM"),
	}
	NetworkConfigFlag = &cli.PathFlag{
		Name:    "network-config",
		Usage:   "Path to a TOML file describing named networks",
		EnvVars: prefixEnvVars("NETWORK_CONFIG"),
	}
	NetworkFlag = &cli.StringFlag{
		Name:    "network",
		Usage:   "Name of the network to use from the network config file",
		EnvVars: prefixEnvVars("NETWORK"),
	}

	// Transfer Flags
	DepositGasLimitFlag = &cli.Uint64Flag{
		Name:    "deposit.gas-limit",
		Usage:   "L2 gas limit of the deposit transaction",
		Value:   100_000,
		EnvVars: prefixEnvVars("DEPOSIT_GAS_LIMIT"),
	}
	WithdrawalGasLimitFlag = &cli.Uint64Flag{
		Name:    "withdrawal.gas-limit",
		Usage:   "Minimum gas limit for executing the withdrawal message on L1",
		Value:   100_000,
		EnvVars: prefixEnvVars("WITHDRAWAL_GAS_LIMIT"),
	}
	PollIntervalFlag = &cli.DurationFlag{
		Name:    "poll-interval",
		Usage:   "Initial interval between polls while waiting for a withdrawal to become provable or finalizable",
		Value:   12 * time.Second,
		EnvVars: prefixEnvVars("POLL_INTERVAL"),
	}
	MaxPollIntervalFlag = &cli.DurationFlag{
		Name:    "max-poll-interval",
		Usage:   "Maximum interval between polls, reached by backing off",
		Value:   2 * time.Minute,
		EnvVars: prefixEnvVars("MAX_POLL_INTERVAL"),
	}
)

var requiredFlags = []cli.Flag{}

var optionalFlags = []cli.Flag{
	L1EthRpcFlag,
	L2EthRpcFlag,
	PortalAddressFlag,
	L2OutputOracleAddressFlag,
	ProofSystemFlag,
	NetworkConfigFlag,
	NetworkFlag,
	DepositGasLimitFlag,
	WithdrawalGasLimitFlag,
	PollIntervalFlag,
	MaxPollIntervalFlag,
}

func init() {
	requiredFlags = append(requiredFlags, txmgr.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

var Flags []cli.Flag

// CheckRequired checks that the key of the transferring account is set; every other input may come from the network config.
func CheckRequired(ctx *cli.Context) error {
	if !ctx.IsSet(txmgr.PrivateKeyFlagName) {
		return fmt.Errorf("flag %s is required", txmgr.PrivateKeyFlagName)
	}
	return nil
}
