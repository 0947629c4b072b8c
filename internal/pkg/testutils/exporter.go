// Package testutils provides a fake mgr/prometheus exporter for tests.
// Series are real client_golang collectors, so payloads have genuine
// exposition formatting.
package testutils

import (
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Exporter serves a registry over HTTP like the mgr/prometheus module.
type Exporter struct {
	Registry *prometheus.Registry
	Server   *httptest.Server

	status  atomic.Int32
	scrapes atomic.Int32
	gauges  map[string]*prometheus.GaugeVec
	labels  map[string][]string
	mu      sync.Mutex
}

// NewExporter starts an exporter on a random local port. Close it when done.
func NewExporter() *Exporter {
	e := &Exporter{
		Registry: prometheus.NewRegistry(),
		gauges:   map[string]*prometheus.GaugeVec{},
		labels:   map[string][]string{},
	}
	e.status.Store(http.StatusOK)

	handler := promhttp.HandlerFor(e.Registry, promhttp.HandlerOpts{})
	e.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.scrapes.Add(1)
		if code := int(e.status.Load()); code != http.StatusOK {
			w.WriteHeader(code)
			return
		}
		handler.ServeHTTP(w, r)
	}))

	return e
}

// URL returns the metrics endpoint.
func (e *Exporter) URL() string {
	return e.Server.URL + "/metrics"
}

// Close stops the server.
func (e *Exporter) Close() {
	e.Server.Close()
}

// SetStatus makes every following scrape answer with code and no body,
// until set back to http.StatusOK.
func (e *Exporter) SetStatus(code int) {
	e.status.Store(int32(code))
}

// Scrapes returns the number of requests served.
func (e *Exporter) Scrapes() int {
	return int(e.scrapes.Load())
}

// Set sets a series value. labels are name/value pairs; the first Set of a
// family fixes its label names.
func (e *Exporter) Set(name string, value float64, labels ...string) {
	e.vec(name, labels).With(labelMap(labels)).Set(value)
}

// Add adds to a series value.
func (e *Exporter) Add(name string, delta float64, labels ...string) {
	e.vec(name, labels).With(labelMap(labels)).Add(delta)
}

// Delete removes one series.
func (e *Exporter) Delete(name string, labels ...string) bool {
	e.mu.Lock()
	g, ok := e.gauges[name]
	e.mu.Unlock()
	if !ok {
		return false
	}

	return g.Delete(labelMap(labels))
}

// DeleteFamily unregisters a whole family.
func (e *Exporter) DeleteFamily(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.gauges[name]
	if !ok {
		return false
	}
	delete(e.gauges, name)
	delete(e.labels, name)

	return e.Registry.Unregister(g)
}

// Gather returns the registry content.
func (e *Exporter) Gather() ([]*dto.MetricFamily, error) {
	return e.Registry.Gather()
}

func (e *Exporter) vec(name string, labels []string) *prometheus.GaugeVec {
	e.mu.Lock()
	defer e.mu.Unlock()

	if g, ok := e.gauges[name]; ok {
		return g
	}

	names := make([]string, 0, len(labels)/2)
	for i := 0; i+1 < len(labels); i += 2 {
		names = append(names, labels[i])
	}
	sort.Strings(names)

	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: name}, names)
	e.Registry.MustRegister(g)
	e.gauges[name] = g
	e.labels[name] = names

	return g
}

func labelMap(labels []string) prometheus.Labels {
	m := prometheus.Labels{}
	for i := 0; i+1 < len(labels); i += 2 {
		m[labels[i]] = labels[i+1]
	}

	return m
}
