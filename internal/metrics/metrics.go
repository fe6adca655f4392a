// Package metrics exposes Prometheus metrics and a health endpoint for a
// straddle run.
package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"

	"github.com/swapnilk30/AlgoTradingSetup01/internal/instrument"
)

// Metrics holds all Prometheus metrics for the straddle engine.
type Metrics struct {
	CatalogRows     prometheus.Gauge
	CatalogLoadDur  prometheus.Histogram
	CatalogOrigin   *prometheus.CounterVec // labels: origin=cache|upstream|snapshot
	ResolvesTotal   *prometheus.CounterVec // labels: op, outcome
	OrdersTotal     *prometheus.CounterVec // labels: leg, status
	LoginsTotal     *prometheus.CounterVec // labels: status
	BreakerState    *prometheus.GaugeVec   // 0=closed, 1=open, 2=half-open
	LastRunUnixTime prometheus.Gauge
}

// NewMetrics creates the metrics and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		CatalogRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "straddle_catalog_instruments",
			Help: "Instruments in the loaded catalog",
		}),
		CatalogLoadDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "straddle_catalog_load_duration_seconds",
			Help:    "Time to fetch, decode and index the scrip master",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		CatalogOrigin: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "straddle_catalog_loads_total",
			Help: "Catalog loads by where the master came from",
		}, []string{"origin"}),
		ResolvesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "straddle_resolves_total",
			Help: "Instrument lookups by operation and outcome",
		}, []string{"op", "outcome"}),
		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "straddle_orders_total",
			Help: "Leg submissions by leg and status",
		}, []string{"leg", "status"}),
		LoginsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "straddle_broker_logins_total",
			Help: "Broker login attempts by status",
		}, []string{"status"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "straddle_circuit_breaker_state",
			Help: "Broker circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
		LastRunUnixTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "straddle_last_run_timestamp_seconds",
			Help: "Unix time of the last straddle evaluation",
		}),
	}

	reg.MustRegister(
		m.CatalogRows,
		m.CatalogLoadDur,
		m.CatalogOrigin,
		m.ResolvesTotal,
		m.OrdersTotal,
		m.LoginsTotal,
		m.BreakerState,
		m.LastRunUnixTime,
	)
	return m
}

// ObserveCatalog records a completed catalog load.
func (m *Metrics) ObserveCatalog(rows int, took time.Duration, origin string) {
	m.CatalogRows.Set(float64(rows))
	m.CatalogLoadDur.Observe(took.Seconds())
	if origin != "" {
		m.CatalogOrigin.WithLabelValues(origin).Inc()
	}
}

// ObserveResolve matches instrument.Resolver.OnResolve.
func (m *Metrics) ObserveResolve(op string, err error) {
	m.ResolvesTotal.WithLabelValues(op, outcome(err)).Inc()
}

// ObserveOrder records one leg submission.
func (m *Metrics) ObserveOrder(leg string, err error) {
	status := "placed"
	if err != nil {
		status = "rejected"
	}
	m.OrdersTotal.WithLabelValues(leg, status).Inc()
}

// ObserveLogin records a broker login attempt.
func (m *Metrics) ObserveLogin(err error) {
	status := "ok"
	if err != nil {
		status = "failed"
	}
	m.LoginsTotal.WithLabelValues(status).Inc()
}

// ObserveBreaker matches gobreaker.Settings.OnStateChange.
func (m *Metrics) ObserveBreaker(name string, _, to gobreaker.State) {
	m.BreakerState.WithLabelValues(name).Set(float64(to))
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	switch {
	case errors.Is(err, instrument.ErrNotFound):
		return "not_found"
	case errors.Is(err, instrument.ErrAmbiguousMatch):
		return "ambiguous"
	case errors.Is(err, instrument.ErrInvalidQuery):
		return "invalid"
	}
	return "error"
}

// HealthStatus tracks the dependencies of a run.
type HealthStatus struct {
	mu sync.RWMutex

	CatalogRows     int       `json:"catalog_rows"`
	CatalogLoadedAt time.Time `json:"catalog_loaded_at"`
	SessionOK       bool      `json:"session_ok"`
	RedisConnected  bool      `json:"redis_connected"`
	SQLiteOK        bool      `json:"sqlite_ok"`
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetCatalog(rows int, loadedAt time.Time) {
	h.mu.Lock()
	h.CatalogRows, h.CatalogLoadedAt = rows, loadedAt
	h.mu.Unlock()
}

func (h *HealthStatus) SetSessionOK(v bool) {
	h.mu.Lock()
	h.SessionOK = v
	h.mu.Unlock()
}

// Pinger is satisfied by the Redis cache and the SQLite snapshot store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CheckRedis pings Redis and records latency and connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, p Pinger) {
	ok, ms := probe(ctx, p)
	h.mu.Lock()
	h.RedisConnected, h.RedisLatencyMs, h.LastCheckAt = ok, ms, time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the snapshot database and records latency and health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, p Pinger) {
	ok, ms := probe(ctx, p)
	h.mu.Lock()
	h.SQLiteOK, h.SQLiteLatencyMs, h.LastCheckAt = ok, ms, time.Now()
	h.mu.Unlock()
}

func probe(ctx context.Context, p Pinger) (bool, float64) {
	start := time.Now()
	err := p.Ping(ctx)
	return err == nil, float64(time.Since(start).Microseconds()) / 1000.0
}

// StartLivenessChecker probes the stores every interval until ctx is done.
// Either pinger may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, redis, sqlite Pinger, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if redis != nil {
					h.CheckRedis(probeCtx, redis)
				}
				if sqlite != nil {
					h.CheckSQLite(probeCtx, sqlite)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles /healthz. The run is healthy once a catalog is loaded
// and the broker session is up; the stores only degrade it.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status, code := "healthy", http.StatusOK
	switch {
	case h.CatalogRows == 0 || !h.SessionOK:
		status, code = "unhealthy", http.StatusServiceUnavailable
	case !h.RedisConnected || !h.SQLiteOK:
		status = "degraded"
	}

	body := struct {
		Status string `json:"status"`
		Uptime string `json:"uptime"`
		*HealthStatus
	}{
		Status:       status,
		Uptime:       time.Since(h.StartedAt).Round(time.Second).String(),
		HealthStatus: h,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("metrics: encode health", "error", err)
	}
}

// Server runs an HTTP server exposing /metrics, /healthz and the lookup API.
type Server struct {
	addr string
	srv  *http.Server
	ln   net.Listener
}

// NewServer creates the server. gatherer nil means the default registry;
// api may be nil.
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer, api http.Handler) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Handle("/healthz", health)
	if api != nil {
		r.Mount("/", api)
	}
	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second},
	}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start binds the listener and serves in a goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	go func() {
		slog.Info("metrics: server listening", "addr", ln.Addr().String())
		if err := s.srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics: server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
