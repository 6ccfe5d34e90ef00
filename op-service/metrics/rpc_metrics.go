package metrics

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const RPCClientSubsystem = "rpc_client"

type RPCMetricer interface {
	RecordRPCClientRequest(rpc string, method string) func(err error)
}

// RPCMetrics tracks outgoing JSON-RPC requests per endpoint name and method.
type RPCMetrics struct {
	clientRequestsTotal          *prometheus.CounterVec
	clientRequestDurationSeconds *prometheus.HistogramVec
	clientResponsesTotal         *prometheus.CounterVec
}

var _ RPCMetricer = (*RPCMetrics)(nil)

// MakeRPCMetrics creates a new RPCMetrics with the given namespace.
// This struct is intended to be embedded into the larger metrics struct.
func MakeRPCMetrics(ns string, factory Factory) RPCMetrics {
	return RPCMetrics{
		clientRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: RPCClientSubsystem,
			Name:      "requests_total",
			Help:      "Total RPC requests initiated",
		}, []string{
			"rpc",
			"method",
		}),
		clientRequestDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: RPCClientSubsystem,
			Name:      "request_duration_seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			Help:      "Histogram of RPC client request durations",
		}, []string{
			"rpc",
			"method",
		}),
		clientResponsesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: RPCClientSubsystem,
			Name:      "responses_total",
			Help:      "Total RPC request responses received",
		}, []string{
			"rpc",
			"method",
			"error",
		}),
	}
}

// RecordRPCClientRequest records the start of a request and returns the callback recording its response.
func (m *RPCMetrics) RecordRPCClientRequest(rpc string, method string) func(err error) {
	m.clientRequestsTotal.WithLabelValues(rpc, method).Inc()
	timer := prometheus.NewTimer(m.clientRequestDurationSeconds.WithLabelValues(rpc, method))
	return func(err error) {
		timer.ObserveDuration()
		errStr := "<nil>"
		if err != nil {
			errStr = err.Error()
		}
		m.clientResponsesTotal.WithLabelValues(rpc, method, errStr).Inc()
	}
}

type NoopRPCMetrics struct{}

func (n *NoopRPCMetrics) RecordRPCClientRequest(rpc string, method string) func(err error) {
	return func(err error) {}
}

var _ RPCMetricer = (*NoopRPCMetrics)(nil)

// InstrumentedTransport wraps an http.RoundTripper, recording every JSON-RPC call through it.
// Batches are recorded under the method "batch".
type InstrumentedTransport struct {
	Base    http.RoundTripper
	Name    string
	Metrics RPCMetricer
}

func (t *InstrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	method := "unknown"
	if req.Body != nil {
		data, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, err
		}
		method = rpcMethod(data)
		req = req.Clone(req.Context())
		req.Body = io.NopCloser(bytes.NewReader(data))
	}
	done := t.Metrics.RecordRPCClientRequest(t.Name, method)
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	switch {
	case err != nil:
		done(errTransport)
	case resp.StatusCode != http.StatusOK:
		done(rpcErr("http_" + strconv.Itoa(resp.StatusCode)))
	default:
		done(nil)
	}
	return resp, err
}

type rpcErr string

func (e rpcErr) Error() string { return string(e) }

const errTransport = rpcErr("transport")

func rpcMethod(data []byte) string {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		return "batch"
	}
	var msg struct {
		Method string `json:"method"`
	}
	if err := json.Unmarshal(data, &msg); err != nil || msg.Method == "" {
		return "unknown"
	}
	return msg.Method
}
