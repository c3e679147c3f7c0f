package metrics

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus is a Collector backed by client_golang. Vectors are created and registered
// on first use of a metric name; a name must always be used with the same label keys.
type Prometheus struct {
	namespace string
	reg       prometheus.Registerer
	buckets   map[string][]float64

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

type PrometheusOption func(*Prometheus)

// WithBuckets sets histogram buckets for one metric name.
func WithBuckets(name string, buckets []float64) PrometheusOption {
	return func(p *Prometheus) { p.buckets[name] = buckets }
}

func NewPrometheus(reg prometheus.Registerer, namespace string, opts ...PrometheusOption) *Prometheus {
	p := &Prometheus{
		namespace:  namespace,
		reg:        reg,
		buckets:    make(map[string][]float64),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Prometheus) IncCounter(name string, labels map[string]string, delta float64) {
	p.mu.Lock()
	vec, ok := p.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Name:      name,
			Help:      help(name),
		}, labelNames(labels))
		if !p.register(name, vec) {
			p.mu.Unlock()
			return
		}
		p.counters[name] = vec
	}
	p.mu.Unlock()

	c, err := vec.GetMetricWith(labels)
	if err != nil {
		slog.Warn("metrics: bad counter labels", "name", name, "error", err)
		return
	}
	c.Add(delta)
}

func (p *Prometheus) SetGauge(name string, labels map[string]string, value float64) {
	p.mu.Lock()
	vec, ok := p.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Name:      name,
			Help:      help(name),
		}, labelNames(labels))
		if !p.register(name, vec) {
			p.mu.Unlock()
			return
		}
		p.gauges[name] = vec
	}
	p.mu.Unlock()

	g, err := vec.GetMetricWith(labels)
	if err != nil {
		slog.Warn("metrics: bad gauge labels", "name", name, "error", err)
		return
	}
	g.Set(value)
}

func (p *Prometheus) ObserveHistogram(name string, labels map[string]string, value float64) {
	p.mu.Lock()
	vec, ok := p.histograms[name]
	if !ok {
		buckets := p.buckets[name]
		if buckets == nil {
			buckets = prometheus.DefBuckets
		}
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Name:      name,
			Help:      help(name),
			Buckets:   buckets,
		}, labelNames(labels))
		if !p.register(name, vec) {
			p.mu.Unlock()
			return
		}
		p.histograms[name] = vec
	}
	p.mu.Unlock()

	h, err := vec.GetMetricWith(labels)
	if err != nil {
		slog.Warn("metrics: bad histogram labels", "name", name, "error", err)
		return
	}
	h.Observe(value)
}

// register must be called with p.mu held.
func (p *Prometheus) register(name string, c prometheus.Collector) bool {
	if p.reg == nil {
		return true
	}
	if err := p.reg.Register(c); err != nil {
		slog.Warn("metrics: register failed", "name", name, "error", err)
		return false
	}
	return true
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func help(name string) string {
	return strings.ReplaceAll(name, "_", " ")
}
