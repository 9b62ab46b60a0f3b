// Package metrics exposes bridge instrumentation through Prometheus: native
// call volume and latency, callback pump activity, tracked request outcomes
// and the initialization state.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config represents metrics configuration
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// FunctionMetrics tracks aggregated numbers for one native function
type FunctionMetrics struct {
	Count         int64         `json:"count"`
	Errors        int64         `json:"errors"`
	TotalDuration time.Duration `json:"total_duration"`
	AvgDuration   time.Duration `json:"avg_duration"`
	LastCall      time.Time     `json:"last_call"`
}

// Collector implements metrics collection for the bridge. It satisfies the
// native backend's observer contract, so wiring it in is a single option.
type Collector struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry

	nativeCallCounter  *prometheus.CounterVec
	nativeCallDuration *prometheus.HistogramVec
	pumpCounter        prometheus.Counter
	requestCounter     *prometheus.CounterVec
	pendingRequests    prometheus.Gauge
	initializedGauge   *prometheus.GaugeVec

	// Internal tracking
	functions map[string]*FunctionMetrics
	lastReset time.Time

	// HTTP server for the metrics endpoint
	server *http.Server
}

// NewCollector creates a new metrics collector
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = &Config{
			Enabled:   true,
			Port:      9090,
			Path:      "/metrics",
			Namespace: "steambridge",
		}
	}

	if !config.Enabled {
		return &Collector{config: config}, nil
	}

	collector := &Collector{
		config:    config,
		registry:  prometheus.NewRegistry(),
		functions: make(map[string]*FunctionMetrics),
		lastReset: time.Now(),
	}

	collector.initMetrics()
	if err := collector.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return collector, nil
}

// Start starts the metrics endpoint server
func (c *Collector) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(c.config.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", c.healthHandler)

	c.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", c.config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second, // Prevent Slowloris attacks
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("Metrics server error: %v\n", err)
		}
	}()

	return nil
}

// Stop stops the metrics endpoint server
func (c *Collector) Stop(ctx context.Context) error {
	if c.server != nil {
		return c.server.Shutdown(ctx)
	}
	return nil
}

// RecordNativeCall records one native function invocation
func (c *Collector) RecordNativeCall(function string, duration time.Duration, success bool) {
	if !c.config.Enabled {
		return
	}

	c.mu.Lock()
	if metrics, exists := c.functions[function]; exists {
		metrics.Count++
		metrics.TotalDuration += duration
		if !success {
			metrics.Errors++
		}
		metrics.LastCall = time.Now()
		metrics.AvgDuration = time.Duration(int64(metrics.TotalDuration) / metrics.Count)
	} else {
		errors := int64(0)
		if !success {
			errors = 1
		}
		c.functions[function] = &FunctionMetrics{
			Count:         1,
			Errors:        errors,
			TotalDuration: duration,
			AvgDuration:   duration,
			LastCall:      time.Now(),
		}
	}
	c.mu.Unlock()

	c.nativeCallCounter.With(prometheus.Labels{
		"function": function,
		"status":   map[bool]string{true: "success", false: "error"}[success],
	}).Inc()
	c.nativeCallDuration.With(prometheus.Labels{
		"function": function,
	}).Observe(duration.Seconds())
}

// RecordPump records one callback-queue pump
func (c *Collector) RecordPump() {
	if !c.config.Enabled {
		return
	}
	c.pumpCounter.Inc()
}

// RecordRequest records the outcome of a tracked call-result request
func (c *Collector) RecordRequest(outcome string) {
	if !c.config.Enabled {
		return
	}
	c.requestCounter.With(prometheus.Labels{"outcome": outcome}).Inc()
}

// UpdatePendingRequests updates the pending-request table size
func (c *Collector) UpdatePendingRequests(count int) {
	if !c.config.Enabled {
		return
	}
	c.pendingRequests.Set(float64(count))
}

// SetInitialized flags which backend is currently up, if any
func (c *Collector) SetInitialized(backend string, up bool) {
	if !c.config.Enabled {
		return
	}
	value := 0.0
	if up {
		value = 1.0
	}
	c.initializedGauge.With(prometheus.Labels{"backend": backend}).Set(value)
}

// GetMetrics returns the internal per-function tracking as a snapshot
func (c *Collector) GetMetrics() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	functions := make(map[string]FunctionMetrics, len(c.functions))
	for name, m := range c.functions {
		functions[name] = *m
	}
	return map[string]interface{}{
		"functions":  functions,
		"last_reset": c.lastReset,
	}
}

// ResetMetrics clears the internal per-function tracking
func (c *Collector) ResetMetrics() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.functions = make(map[string]*FunctionMetrics)
	c.lastReset = time.Now()
}

func (c *Collector) initMetrics() {
	c.nativeCallCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Name:      "native_calls_total",
			Help:      "Total number of native function invocations",
		},
		[]string{"function", "status"},
	)

	c.nativeCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: c.config.Namespace,
			Name:      "native_call_duration_seconds",
			Help:      "Duration of native function invocations in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10), // 10µs to ~2.6s
		},
		[]string{"function"},
	)

	c.pumpCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Name:      "callback_pumps_total",
			Help:      "Total number of callback-queue pumps",
		},
	)

	c.requestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Name:      "call_results_total",
			Help:      "Outcomes of tracked call-result requests",
		},
		[]string{"outcome"},
	)

	c.pendingRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: c.config.Namespace,
			Name:      "pending_requests",
			Help:      "Number of call-result requests awaiting completion",
		},
	)

	c.initializedGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: c.config.Namespace,
			Name:      "initialized",
			Help:      "Whether a backend is initialized (1) or not (0)",
		},
		[]string{"backend"},
	)
}

func (c *Collector) registerMetrics() error {
	metrics := []prometheus.Collector{
		c.nativeCallCounter,
		c.nativeCallDuration,
		c.pumpCounter,
		c.requestCounter,
		c.pendingRequests,
		c.initializedGauge,
	}

	for _, metric := range metrics {
		if err := c.registry.Register(metric); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}
