package dial

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/opbridge/opbridge/op-service/metrics"
	"github.com/opbridge/opbridge/op-service/retry"
)

// DefaultDialTimeout is a default timeout for dialing a client.
const DefaultDialTimeout = 1 * time.Minute
const defaultRetryCount = 30
const defaultRetryTime = 2 * time.Second
const defaultConnectTimeout = 10 * time.Second

// DialEthClientWithTimeout attempts to dial the provider using the provided
// URL. If the dial doesn't complete within timeout, this method will return an error.
func DialEthClientWithTimeout(ctx context.Context, timeout time.Duration, log log.Logger, url string, opts ...rpc.ClientOption) (*ethclient.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c, err := dialRPCClientWithBackoff(ctx, log, url, opts...)
	if err != nil {
		return nil, err
	}

	return ethclient.NewClient(c), nil
}

// DialRPCClientWithTimeout attempts to dial the RPC provider using the provided URL.
func DialRPCClientWithTimeout(ctx context.Context, timeout time.Duration, log log.Logger, url string, opts ...rpc.ClientOption) (*rpc.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return dialRPCClientWithBackoff(ctx, log, url, opts...)
}

// WithRPCMetrics returns the client option recording every HTTP JSON-RPC call under name.
func WithRPCMetrics(name string, m metrics.RPCMetricer) rpc.ClientOption {
	return rpc.WithHTTPClient(&http.Client{
		Transport: &metrics.InstrumentedTransport{Base: http.DefaultTransport, Name: name, Metrics: m},
	})
}

// Dials a JSON-RPC endpoint repeatedly, with a backoff, until a client connection is established.
func dialRPCClientWithBackoff(ctx context.Context, log log.Logger, addr string, opts ...rpc.ClientOption) (*rpc.Client, error) {
	bOff := retry.Fixed(defaultRetryTime)
	return retry.Do(ctx, defaultRetryCount, bOff, func() (*rpc.Client, error) {
		return dialRPCClient(ctx, log, addr, opts...)
	})
}

// Dials a JSON-RPC endpoint once and checks it answers eth_chainId.
func dialRPCClient(ctx context.Context, log log.Logger, addr string, opts ...rpc.ClientOption) (*rpc.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	c, err := rpc.DialOptions(ctx, addr, opts...)
	if err != nil {
		log.Warn("Failed to dial RPC endpoint", "addr", addr, "err", err)
		return nil, fmt.Errorf("failed to dial address (%s): %w", addr, err)
	}
	var chainID string
	if err := c.CallContext(ctx, &chainID, "eth_chainId"); err != nil {
		c.Close()
		log.Warn("RPC endpoint not ready", "addr", addr, "err", err)
		return nil, fmt.Errorf("failed to query chain id of %s: %w", addr, err)
	}
	log.Info("Connected to RPC endpoint", "addr", addr, "chain_id", chainID)
	return c, nil
}
