package metrics

import (
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Factory creates and registers metrics, and remembers them for documentation.
type Factory interface {
	NewCounter(opts prometheus.CounterOpts) prometheus.Counter
	NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec
	NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge
	NewGaugeVec(opts prometheus.GaugeOpts, labelNames []string) *prometheus.GaugeVec
	NewHistogram(opts prometheus.HistogramOpts) prometheus.Histogram
	NewHistogramVec(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec
	Document() []DocumentedMetric
}

type DocumentedMetric struct {
	Type   string   `json:"type"`
	Name   string   `json:"name"`
	Help   string   `json:"help"`
	Labels []string `json:"labels"`
}

// RegistryMetricer is implemented by service metrics that expose their registry.
type RegistryMetricer interface {
	Registry() *prometheus.Registry
}

type documentor struct {
	metrics []DocumentedMetric
	factory *registeringFactory
}

type registeringFactory struct {
	registry *prometheus.Registry
}

// NewRegistry returns a registry with the go runtime and process collectors attached.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewGoCollector())
	return registry
}

// With returns a Factory registering every created metric on registry.
func With(registry *prometheus.Registry) Factory {
	return &documentor{factory: &registeringFactory{registry: registry}}
}

func (f *registeringFactory) register(c prometheus.Collector) {
	f.registry.MustRegister(c)
}

func (d *documentor) NewCounter(opts prometheus.CounterOpts) prometheus.Counter {
	d.add("counter", fullName(opts.Namespace, opts.Subsystem, opts.Name), opts.Help, nil)
	c := prometheus.NewCounter(opts)
	d.factory.register(c)
	return c
}

func (d *documentor) NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
	d.add("counter", fullName(opts.Namespace, opts.Subsystem, opts.Name), opts.Help, labelNames)
	c := prometheus.NewCounterVec(opts, labelNames)
	d.factory.register(c)
	return c
}

func (d *documentor) NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	d.add("gauge", fullName(opts.Namespace, opts.Subsystem, opts.Name), opts.Help, nil)
	g := prometheus.NewGauge(opts)
	d.factory.register(g)
	return g
}

func (d *documentor) NewGaugeVec(opts prometheus.GaugeOpts, labelNames []string) *prometheus.GaugeVec {
	d.add("gauge", fullName(opts.Namespace, opts.Subsystem, opts.Name), opts.Help, labelNames)
	g := prometheus.NewGaugeVec(opts, labelNames)
	d.factory.register(g)
	return g
}

func (d *documentor) NewHistogram(opts prometheus.HistogramOpts) prometheus.Histogram {
	d.add("histogram", fullName(opts.Namespace, opts.Subsystem, opts.Name), opts.Help, nil)
	h := prometheus.NewHistogram(opts)
	d.factory.register(h)
	return h
}

func (d *documentor) NewHistogramVec(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec {
	d.add("histogram", fullName(opts.Namespace, opts.Subsystem, opts.Name), opts.Help, labelNames)
	h := prometheus.NewHistogramVec(opts, labelNames)
	d.factory.register(h)
	return h
}

// Document returns the created metrics sorted by name.
func (d *documentor) Document() []DocumentedMetric {
	out := make([]DocumentedMetric, len(d.metrics))
	copy(out, d.metrics)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (d *documentor) add(typ, name, help string, labels []string) {
	d.metrics = append(d.metrics, DocumentedMetric{Type: typ, Name: name, Help: help, Labels: labels})
}

func fullName(ns, subsystem, name string) string {
	return prometheus.BuildFQName(ns, subsystem, name)
}
