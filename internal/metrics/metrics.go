// Package metrics implements component C6 (spec §4.6): booking counters,
// a concurrency gauge, and a rolling duration sample for p50/p95/p99.
// Grounded on original_source/app/core/metrics.py's BookingMetrics and
// MetricsCollector, with one deliberate change called out in spec §9:
// failure classification reads the typed bookingerr.Source a call result
// already carries, rather than matching substrings in an error's text.
// Counters and gauges are exported through
// github.com/prometheus/client_golang, the teacher's metrics library.
package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"eventbooking/internal/bookingerr"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const maxDurationSamples = 1000

// Collector holds every counter, gauge, and duration sample described in
// spec §4.6. All mutations happen under mu; the concurrency gauge is
// incremented on entry and decremented exactly once on exit, each inside
// its own single critical section (spec §9).
type Collector struct {
	mu     sync.Mutex
	logger *zap.Logger

	totalBookings      int64
	successfulBookings int64
	failedBookings     int64
	confirmedBookings  int64
	cancelledBookings  int64
	expiredBookings    int64
	rateLimitedCount   int64
	circuitOpenCount   int64
	fastStoreFailures  int64
	durableFailures    int64

	concurrentOps    int
	maxConcurrentOps int

	durations    [maxDurationSamples]time.Duration
	durationHead int
	durationLen  int

	promTotal       *prometheus.CounterVec
	promConcurrency prometheus.Gauge
	promDuration    prometheus.Histogram
}

// New constructs a Collector and registers its series against reg
// (prometheus.DefaultRegisterer in production, a fresh registry in tests).
// logger receives periodic snapshots and individual failure events on its
// own "metrics" log stream (pkg/logger.NewMetricsLogger), separate from the
// application and access logs; pass zap.NewNop() in tests that don't care.
func New(reg prometheus.Registerer, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger,
		promTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_operations_total",
			Help: "Booking operations by outcome.",
		}, []string{"outcome"}),
		promConcurrency: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "booking_operations_in_flight",
			Help: "Number of booking-service operations currently executing.",
		}),
		promDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "booking_operation_duration_seconds",
			Help:    "Booking-service operation latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(c.promTotal, c.promConcurrency, c.promDuration)
	return c
}

// OperationTracker is returned by BeginBookingOperation; callers must call
// Finish exactly once on every exit path.
type OperationTracker struct {
	collector *Collector
	start     time.Time
}

// BeginBookingOperation marks the start of a booking-service operation.
func (c *Collector) BeginBookingOperation() *OperationTracker {
	c.mu.Lock()
	c.concurrentOps++
	if c.concurrentOps > c.maxConcurrentOps {
		c.maxConcurrentOps = c.concurrentOps
	}
	inFlight := c.concurrentOps
	c.mu.Unlock()
	c.promConcurrency.Set(float64(inFlight))
	return &OperationTracker{collector: c, start: time.Now()}
}

// Finish records the operation's elapsed time and outcome and decrements
// the concurrency gauge. err should be nil on success, or the error the
// operation returned on failure.
func (t *OperationTracker) Finish(err error) {
	elapsed := time.Since(t.start)
	c := t.collector

	c.mu.Lock()
	c.concurrentOps--
	inFlight := c.concurrentOps
	c.totalBookings++
	if err == nil {
		c.successfulBookings++
	} else {
		c.failedBookings++
		c.recordFailureSourceLocked(err)
	}
	c.recordDurationLocked(elapsed)
	c.mu.Unlock()

	c.promConcurrency.Set(float64(inFlight))
	c.promDuration.Observe(elapsed.Seconds())
	if err == nil {
		c.promTotal.WithLabelValues("success").Inc()
	} else {
		c.promTotal.WithLabelValues("failure").Inc()
		c.logger.Warn("booking operation failed", zap.Error(err), zap.Duration("elapsed", elapsed))
	}
}

// recordFailureSourceLocked buckets a failed operation by the dependency
// that produced it, read off the typed Source on *bookingerr.Error.
func (c *Collector) recordFailureSourceLocked(err error) {
	be, ok := bookingerr.As(err)
	if !ok {
		return
	}
	switch be.Source {
	case bookingerr.SourceReservation:
		c.fastStoreFailures++
	case bookingerr.SourceDurable:
		c.durableFailures++
	}
}

func (c *Collector) recordDurationLocked(d time.Duration) {
	c.durations[c.durationHead] = d
	c.durationHead = (c.durationHead + 1) % maxDurationSamples
	if c.durationLen < maxDurationSamples {
		c.durationLen++
	}
}

// IncRateLimited records a request rejected by the sliding-window limiter.
func (c *Collector) IncRateLimited() {
	c.mu.Lock()
	c.rateLimitedCount++
	c.mu.Unlock()
	c.promTotal.WithLabelValues("rate_limited").Inc()
}

// IncCircuitOpen records a call that failed fast because the reservation
// store's circuit breaker was open.
func (c *Collector) IncCircuitOpen() {
	c.mu.Lock()
	c.circuitOpenCount++
	c.mu.Unlock()
	c.promTotal.WithLabelValues("circuit_open").Inc()
}

// IncConfirmed records a booking transitioning to confirmed.
func (c *Collector) IncConfirmed() {
	c.mu.Lock()
	c.confirmedBookings++
	c.mu.Unlock()
	c.promTotal.WithLabelValues("confirmed").Inc()
}

// IncCancelled records a booking transitioning to cancelled.
func (c *Collector) IncCancelled() {
	c.mu.Lock()
	c.cancelledBookings++
	c.mu.Unlock()
	c.promTotal.WithLabelValues("cancelled").Inc()
}

// IncExpired records a booking observed past its expiration.
func (c *Collector) IncExpired() {
	c.mu.Lock()
	c.expiredBookings++
	c.mu.Unlock()
	c.promTotal.WithLabelValues("expired").Inc()
}

// Snapshot is a point-in-time read of every counter and gauge, for the
// operator-facing stats endpoint.
type Snapshot struct {
	TotalBookings      int64
	SuccessfulBookings int64
	FailedBookings     int64
	ConfirmedBookings  int64
	CancelledBookings  int64
	ExpiredBookings    int64
	RateLimitedCount   int64
	CircuitOpenCount   int64
	FastStoreFailures  int64
	DurableFailures    int64
	ConcurrentOps      int
	MaxConcurrentOps   int
	P50Millis          float64
	P95Millis          float64
	P99Millis          float64
}

// Snapshot returns the current counters and the p50/p95/p99 of the last
// (up to) 1,000 booking-operation durations.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	samples := make([]time.Duration, c.durationLen)
	copy(samples, c.durations[:c.durationLen])
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })

	return Snapshot{
		TotalBookings:      c.totalBookings,
		SuccessfulBookings: c.successfulBookings,
		FailedBookings:     c.failedBookings,
		ConfirmedBookings:  c.confirmedBookings,
		CancelledBookings:  c.cancelledBookings,
		ExpiredBookings:    c.expiredBookings,
		RateLimitedCount:   c.rateLimitedCount,
		CircuitOpenCount:   c.circuitOpenCount,
		FastStoreFailures:  c.fastStoreFailures,
		DurableFailures:    c.durableFailures,
		ConcurrentOps:      c.concurrentOps,
		MaxConcurrentOps:   c.maxConcurrentOps,
		P50Millis:          percentileMillis(samples, 0.50),
		P95Millis:          percentileMillis(samples, 0.95),
		P99Millis:          percentileMillis(samples, 0.99),
	}
}

func percentileMillis(sorted []time.Duration, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return float64(sorted[idx].Microseconds()) / 1000.0
}

// Server exposes /metrics (Prometheus scrape) and /stats (JSON Snapshot)
// on its own listener, matching the teacher's separate metrics-port
// convention (spec §4.6's operator-facing surface).
type Server struct {
	http     *http.Server
	snapStop chan struct{}
}

// StartServer starts the metrics HTTP server on addr in the background and
// logs a Snapshot to logger every interval, so the metrics log stream
// carries a standing record of throughput and latency alongside the
// Prometheus series (original_source/app/core/metrics.py logs its own
// snapshot periodically; the Go side's ticker goroutine is the counterpart).
func StartServer(addr string, collector *Collector, reg *prometheus.Registry, logger *zap.Logger, interval time.Duration) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		writeJSON(w, collector.Snapshot())
	})

	srv := &Server{http: &http.Server{Addr: addr, Handler: mux}, snapStop: make(chan struct{})}
	go func() {
		_ = srv.http.ListenAndServe()
	}()

	if interval > 0 {
		go srv.logSnapshots(collector, logger, interval)
	}
	return srv
}

func (s *Server) logSnapshots(collector *Collector, logger *zap.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			snap := collector.Snapshot()
			logger.Info("booking metrics snapshot",
				zap.Int64("total", snap.TotalBookings),
				zap.Int64("successful", snap.SuccessfulBookings),
				zap.Int64("failed", snap.FailedBookings),
				zap.Int("in_flight", snap.ConcurrentOps),
				zap.Float64("p95_ms", snap.P95Millis),
			)
		case <-s.snapStop:
			return
		}
	}
}

// Shutdown gracefully shuts down the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.snapStop)
	return s.http.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	enc := json.NewEncoder(w)
	_ = enc.Encode(v)
}
