package txmgr

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"

	opservice "github.com/opbridge/opbridge/op-service"
	"github.com/opbridge/opbridge/op-service/eth"
)

const (
	PrivateKeyFlagName           = "private-key"
	NumConfirmationsFlagName     = "num-confirmations"
	NetworkTimeoutFlagName       = "network-timeout"
	MinBaseFeeFlagName           = "txmgr.min-basefee"
	MaxBaseFeeFlagName           = "txmgr.max-basefee"
	MinTipCapFlagName            = "txmgr.min-tip-cap"
	MaxTipCapFlagName            = "txmgr.max-tip-cap"
	ReceiptQueryIntervalFlagName = "txmgr.receipt-query-interval"
)

type DefaultFlagValues struct {
	NumConfirmations     uint64
	MinTipCapGwei        float64
	MinBaseFeeGwei       float64
	NetworkTimeout       time.Duration
	ReceiptQueryInterval time.Duration
}

var DefaultBridgeFlagValues = DefaultFlagValues{
	NumConfirmations:     uint64(1),
	MinTipCapGwei:        0.001,
	MinBaseFeeGwei:       0.001,
	NetworkTimeout:       10 * time.Second,
	ReceiptQueryInterval: 2 * time.Second,
}

func CLIFlags(envPrefix string) []cli.Flag {
	return CLIFlagsWithDefaults(envPrefix, DefaultBridgeFlagValues)
}

func CLIFlagsWithDefaults(envPrefix string, defaults DefaultFlagValues) []cli.Flag {
	prefixEnvVars := func(name string) []string {
		return opservice.PrefixEnvVar(envPrefix, name)
	}
	return []cli.Flag{
		&cli.StringFlag{
			Name:    PrivateKeyFlagName,
			Usage:   "The private key of the account moving funds, used on both chains",
			EnvVars: prefixEnvVars("PRIVATE_KEY"),
		},
		&cli.Uint64Flag{
			Name:    NumConfirmationsFlagName,
			Usage:   "Number of confirmations which we will wait after a transaction is mined",
			Value:   defaults.NumConfirmations,
			EnvVars: prefixEnvVars("NUM_CONFIRMATIONS"),
		},
		&cli.DurationFlag{
			Name:    NetworkTimeoutFlagName,
			Usage:   "Timeout for all network operations",
			Value:   defaults.NetworkTimeout,
			EnvVars: prefixEnvVars("NETWORK_TIMEOUT"),
		},
		&cli.Float64Flag{
			Name:    MinTipCapFlagName,
			Usage:   "Enforces a minimum tip cap (in GWei) to use when determining tx fees",
			Value:   defaults.MinTipCapGwei,
			EnvVars: prefixEnvVars("TXMGR_MIN_TIP_CAP"),
		},
		&cli.Float64Flag{
			Name:    MaxTipCapFlagName,
			Usage:   "Enforces a maximum tip cap (in GWei) to use when determining tx fees, `TxMgr` returns an error when exceeded. Disabled by default.",
			EnvVars: prefixEnvVars("TXMGR_MAX_TIP_CAP"),
		},
		&cli.Float64Flag{
			Name:    MinBaseFeeFlagName,
			Usage:   "Enforces a minimum base fee (in GWei) to assume when determining tx fees",
			Value:   defaults.MinBaseFeeGwei,
			EnvVars: prefixEnvVars("TXMGR_MIN_BASEFEE"),
		},
		&cli.Float64Flag{
			Name:    MaxBaseFeeFlagName,
			Usage:   "Enforces a maximum base fee (in GWei) to assume when determining tx fees, `TxMgr` returns an error when exceeded. Disabled by default.",
			EnvVars: prefixEnvVars("TXMGR_MAX_BASEFEE"),
		},
		&cli.DurationFlag{
			Name:    ReceiptQueryIntervalFlagName,
			Usage:   "Frequency to poll for receipts",
			Value:   defaults.ReceiptQueryInterval,
			EnvVars: prefixEnvVars("TXMGR_RECEIPT_QUERY_INTERVAL"),
		},
	}
}

type CLIConfig struct {
	PrivateKey           string
	NumConfirmations     uint64
	MinBaseFeeGwei       float64
	MinTipCapGwei        float64
	MaxBaseFeeGwei       float64
	MaxTipCapGwei        float64
	ReceiptQueryInterval time.Duration
	NetworkTimeout       time.Duration
}

func NewCLIConfig(defaults DefaultFlagValues) CLIConfig {
	return CLIConfig{
		NumConfirmations:     defaults.NumConfirmations,
		MinTipCapGwei:        defaults.MinTipCapGwei,
		MinBaseFeeGwei:       defaults.MinBaseFeeGwei,
		NetworkTimeout:       defaults.NetworkTimeout,
		ReceiptQueryInterval: defaults.ReceiptQueryInterval,
	}
}

func (m CLIConfig) Check() error {
	if m.PrivateKey == "" {
		return errors.New("must provide a private key")
	}
	if _, err := parsePrivateKey(m.PrivateKey); err != nil {
		return err
	}
	if m.NumConfirmations == 0 {
		return errors.New("NumConfirmations must not be 0")
	}
	if m.NetworkTimeout == 0 {
		return errors.New("must provide NetworkTimeout")
	}
	if m.MinBaseFeeGwei < m.MinTipCapGwei {
		return fmt.Errorf("minBaseFee smaller than minTipCap, have %f < %f",
			m.MinBaseFeeGwei, m.MinTipCapGwei)
	}
	if m.MaxTipCapGwei > 0 && m.MaxTipCapGwei < m.MinTipCapGwei {
		return fmt.Errorf("maxTipCap smaller than minTipCap, have %f < %f",
			m.MaxTipCapGwei, m.MinTipCapGwei)
	}
	if m.MaxBaseFeeGwei > 0 && m.MaxBaseFeeGwei < m.MinBaseFeeGwei {
		return fmt.Errorf("maxBaseFee smaller than minBaseFee, have %f < %f",
			m.MaxBaseFeeGwei, m.MinBaseFeeGwei)
	}
	if m.ReceiptQueryInterval == 0 {
		return errors.New("must provide ReceiptQueryInterval")
	}
	return nil
}

func ReadCLIConfig(ctx *cli.Context) CLIConfig {
	return CLIConfig{
		PrivateKey:           ctx.String(PrivateKeyFlagName),
		NumConfirmations:     ctx.Uint64(NumConfirmationsFlagName),
		MinBaseFeeGwei:       ctx.Float64(MinBaseFeeFlagName),
		MaxBaseFeeGwei:       ctx.Float64(MaxBaseFeeFlagName),
		MinTipCapGwei:        ctx.Float64(MinTipCapFlagName),
		MaxTipCapGwei:        ctx.Float64(MaxTipCapFlagName),
		ReceiptQueryInterval: ctx.Duration(ReceiptQueryIntervalFlagName),
		NetworkTimeout:       ctx.Duration(NetworkTimeoutFlagName),
	}
}

// NewConfig validates cfg and binds it to a chain backend.
func NewConfig(cfg CLIConfig, backend ETHBackend, l log.Logger) (*Config, error) {
	if err := cfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.NetworkTimeout)
	defer cancel()
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not fetch chain ID: %w", err)
	}

	key, err := parsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	from := crypto.PubkeyToAddress(key.PublicKey)
	l.Debug("Loaded transaction signer", "chain_id", chainID, "from", from)

	minBaseFee, err := eth.GweiToWei(cfg.MinBaseFeeGwei)
	if err != nil {
		return nil, fmt.Errorf("invalid min base fee: %w", err)
	}
	minTipCap, err := eth.GweiToWei(cfg.MinTipCapGwei)
	if err != nil {
		return nil, fmt.Errorf("invalid min tip cap: %w", err)
	}
	var maxBaseFee, maxTipCap *big.Int
	if cfg.MaxBaseFeeGwei > 0 {
		if maxBaseFee, err = eth.GweiToWei(cfg.MaxBaseFeeGwei); err != nil {
			return nil, fmt.Errorf("invalid max base fee: %w", err)
		}
	}
	if cfg.MaxTipCapGwei > 0 {
		if maxTipCap, err = eth.GweiToWei(cfg.MaxTipCapGwei); err != nil {
			return nil, fmt.Errorf("invalid max tip cap: %w", err)
		}
	}

	return &Config{
		Backend:              backend,
		ChainID:              chainID,
		Signer:               PrivateKeySignerFn(key, chainID),
		From:                 from,
		NetworkTimeout:       cfg.NetworkTimeout,
		ReceiptQueryInterval: cfg.ReceiptQueryInterval,
		NumConfirmations:     cfg.NumConfirmations,
		MinBaseFee:           minBaseFee,
		MaxBaseFee:           maxBaseFee,
		MinTipCap:            minTipCap,
		MaxTipCap:            maxTipCap,
	}, nil
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}
