package service

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/opbridge/opbridge/op-bridge/bridge"
	"github.com/opbridge/opbridge/op-bridge/flags"
	"github.com/opbridge/opbridge/op-service/eth"
	oplog "github.com/opbridge/opbridge/op-service/log"
)

const stopTimeout = 10 * time.Second

// AmountArg returns the validated amount argument of a transfer command, DefaultAmount when absent.
func AmountArg(ctx *cli.Context) (eth.ETH, error) {
	switch ctx.NArg() {
	case 0:
		return bridge.ParseAmount(bridge.DefaultAmount)
	case 1:
		return bridge.ParseAmount(ctx.Args().First())
	default:
		return eth.ZeroWei, fmt.Errorf("expected at most one amount argument, got %d", ctx.NArg())
	}
}

// Main returns the action of the transfer command in direction. Handled reverts and an unknown
// L2 hash end the command without error; validation and transport failures return one.
func Main(version string, direction bridge.Direction) cli.ActionFunc {
	return func(cliCtx *cli.Context) error {
		amount, err := AmountArg(cliCtx)
		if err != nil {
			return err
		}
		if err := flags.CheckRequired(cliCtx); err != nil {
			return err
		}
		cfg, err := NewConfig(cliCtx)
		if err != nil {
			return err
		}
		if err := cfg.Check(); err != nil {
			return fmt.Errorf("invalid CLI flags: %w", err)
		}

		l := oplog.NewLogger(oplog.AppOut(cliCtx), cfg.LogConfig)
		oplog.SetGlobalLogHandler(l.Handler())

		ctx := cliCtx.Context
		bs, err := BridgeServiceFromCLIConfig(ctx, version, cfg, l, cliCtx.App.Writer)
		if err != nil {
			return fmt.Errorf("failed to start op-bridge: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			if err := bs.Stop(stopCtx); err != nil {
				l.Error("Failed to stop op-bridge", "err", err)
			}
		}()

		report, err := bs.Transfer(ctx, direction, amount)
		if err != nil {
			return err
		}
		l.Info("Transfer finished", "direction", direction, "stage", report.Stage, "outcome", report.Outcome)
		return nil
	}
}
