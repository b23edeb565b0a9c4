// Package metrics implements the metrics sink contract, backed by
// prometheus/client_golang.
//
// Rather than fixed, hand-declared vectors (one Go var per metric), this
// sink's dimension sets vary by call site (per-app routing keys,
// per-handler DLQ counters, ...), so vectors are created lazily and
// cached per (name, sorted label keys) pair rather than declared up front.
package metrics

import (
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Sink is the metrics capability contract. Emission failures must never
// propagate to callers; this implementation cannot fail at all, since
// prometheus client_golang metric updates are in-memory.
type Sink struct {
	namespace string
	registry  *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
}

// New constructs a Sink reporting under namespace (CLOUDWATCH_NAMESPACE's
// value, reused here as the prometheus namespace) backed by its own
// registry so tests never collide with the default global one.
func New(namespace string) *Sink {
	return &Sink{
		namespace:  sanitizeNamespace(namespace),
		registry:   prometheus.NewRegistry(),
		counters:   map[string]*prometheus.CounterVec{},
		histograms: map[string]*prometheus.HistogramVec{},
		gauges:     map[string]*prometheus.GaugeVec{},
	}
}

// Registry exposes the underlying prometheus registry for an HTTP exposer
// to mount (the observability dashboard's HTTP surface is out of scope;
// this is its sole hook into the core).
func (s *Sink) Registry() *prometheus.Registry { return s.registry }

func sanitizeNamespace(ns string) string {
	r := strings.NewReplacer("/", "_", "-", "_", ".", "_")
	return strings.ToLower(r.Replace(ns))
}

func labelSet(dims map[string]string) ([]string, []string) {
	keys := make([]string, 0, len(dims))
	for k := range dims {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	vals := make([]string, len(keys))
	for i, k := range keys {
		vals[i] = dims[k]
	}
	return keys, vals
}

func vecKey(name string, keys []string) string {
	return name + "|" + strings.Join(keys, ",")
}

// RecordCounter increments the counter named name, with dims as labels.
func (s *Sink) RecordCounter(name string, value float64, dims map[string]string) {
	keys, vals := labelSet(dims)
	s.mu.Lock()
	vec, ok := s.counters[vecKey(name, keys)]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: s.namespace,
			Name:      name,
			Help:      name,
		}, keys)
		s.registry.MustRegister(vec)
		s.counters[vecKey(name, keys)] = vec
	}
	s.mu.Unlock()
	vec.WithLabelValues(vals...).Add(value)
}

// RecordHistogram observes value (in unit, recorded only as a label-free
// convention in the metric name) for name with dims as labels.
func (s *Sink) RecordHistogram(name string, value float64, unit string, dims map[string]string) {
	keys, vals := labelSet(dims)
	fullName := name
	if unit != "" {
		fullName = name + "_" + unit
	}
	s.mu.Lock()
	vec, ok := s.histograms[vecKey(fullName, keys)]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: s.namespace,
			Name:      fullName,
			Help:      fullName,
		}, keys)
		s.registry.MustRegister(vec)
		s.histograms[vecKey(fullName, keys)] = vec
	}
	s.mu.Unlock()
	vec.WithLabelValues(vals...).Observe(value)
}

// RecordGauge sets the gauge named name (suffixed by unit) to value.
func (s *Sink) RecordGauge(name string, value float64, unit string, dims map[string]string) {
	keys, vals := labelSet(dims)
	fullName := name
	if unit != "" {
		fullName = name + "_" + unit
	}
	s.mu.Lock()
	vec, ok := s.gauges[vecKey(fullName, keys)]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: s.namespace,
			Name:      fullName,
			Help:      fullName,
		}, keys)
		s.registry.MustRegister(vec)
		s.gauges[vecKey(fullName, keys)] = vec
	}
	s.mu.Unlock()
	vec.WithLabelValues(vals...).Set(value)
}
