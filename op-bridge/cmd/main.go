package main

import (
	"context"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/opbridge/opbridge/op-bridge/bridge"
	"github.com/opbridge/opbridge/op-bridge/flags"
	"github.com/opbridge/opbridge/op-bridge/metrics"
	"github.com/opbridge/opbridge/op-bridge/service"
	opservice "github.com/opbridge/opbridge/op-service"
	"github.com/opbridge/opbridge/op-service/ctxinterrupt"
	oplog "github.com/opbridge/opbridge/op-service/log"
	"github.com/opbridge/opbridge/op-service/metrics/doc"
)

var (
	Version   = "v0.0.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	oplog.SetupDefaults()

	app := cli.NewApp()
	app.Version = opservice.FormatVersion(Version, GitCommit, GitDate, "")
	app.Name = "op-bridge"
	app.Usage = "Bridges ETH between an L1 and an OP-Stack L2"
	app.Description = "Deposits ETH from L1 to L2, or withdraws it from L2 to L1 through the prove and finalize steps"
	app.Commands = []*cli.Command{
		{
			Name:      "deposit",
			Usage:     "Deposit ETH from L1 to L2",
			ArgsUsage: "[amount]",
			Flags:     flags.Flags,
			Action:    service.Main(Version, bridge.DirectionDeposit),
		},
		{
			Name:      "withdraw",
			Usage:     "Withdraw ETH from L2 to L1",
			ArgsUsage: "[amount]",
			Flags:     flags.Flags,
			Action:    service.Main(Version, bridge.DirectionWithdrawal),
		},
		{
			Name:        "doc",
			Subcommands: doc.NewSubcommands(metrics.NewMetrics("default")),
		},
	}

	ctx, cancel := ctxinterrupt.WithCancelOnInterrupt(context.Background())
	defer cancel()
	err := app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}
