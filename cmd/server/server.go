package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yourorg/restake-risk-ea/internal/aggregate"
	"github.com/yourorg/restake-risk-ea/internal/cache"
	"github.com/yourorg/restake-risk-ea/internal/circuitbreaker"
	"github.com/yourorg/restake-risk-ea/internal/model"
	"github.com/yourorg/restake-risk-ea/internal/security"
	"github.com/yourorg/restake-risk-ea/internal/validation"
)

const version = "1.0.0"

// maxRequestBytes bounds inbound request bodies
const maxRequestBytes = 1 << 20

// Server is the HTTP surface over the aggregation core
type Server struct {
	core    *aggregate.Core
	cache   *cache.SourceCache
	breaker *circuitbreaker.CircuitBreaker
	signer  *security.Signer
	limiter *rate.Limiter

	router   *chi.Mux
	registry *prometheus.Registry
	metrics  *serverMetrics
	started  time.Time
}

// serverMetrics holds Prometheus metrics for the HTTP layer
type serverMetrics struct {
	requestCounter  *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	circuitBreaker  prometheus.GaugeFunc
}

func newServerMetrics(breaker *circuitbreaker.CircuitBreaker) *serverMetrics {
	return &serverMetrics{
		requestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "restake_requests_total",
				Help: "Total number of requests processed",
			},
			[]string{"route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "restake_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		circuitBreaker: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "restake_circuit_breaker_state",
				Help: "Yield feed breaker state (0=closed, 1=open, 2=half-open)",
			},
			func() float64 { return float64(breaker.GetState()) },
		),
	}
}

func (m *serverMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.requestCounter, m.requestDuration, m.circuitBreaker}
}

// NewServer wires the routes. signer and limiter are optional.
func NewServer(core *aggregate.Core, sc *cache.SourceCache, breaker *circuitbreaker.CircuitBreaker, signer *security.Signer, limiter *rate.Limiter, collectors ...prometheus.Collector) *Server {
	s := &Server{
		core:     core,
		cache:    sc,
		breaker:  breaker,
		signer:   signer,
		limiter:  limiter,
		router:   chi.NewRouter(),
		registry: prometheus.NewRegistry(),
		metrics:  newServerMetrics(breaker),
		started:  time.Now(),
	}

	s.registry.MustRegister(s.metrics.collectors()...)
	s.registry.MustRegister(core.Collectors()...)
	s.registry.MustRegister(sc.Collectors()...)
	s.registry.MustRegister(collectors...)

	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(s.loggingMiddleware)

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/status", s.handleStatus)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.rateLimitMiddleware)
		r.Get("/risk", s.handleRisk)
		r.Post("/portfolio", s.handlePortfolio)
		r.Get("/portfolio/assets", s.handleAssets)
		r.Get("/sources", s.handleSources)
		r.Post("/circuit/reset", s.handleCircuitReset)
	})

	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response is the envelope of every API response. Data is the core output;
// the ID, timestamp and seal are added per request.
type Response struct {
	RequestID string         `json:"request_id"`
	Timestamp time.Time      `json:"timestamp"`
	Status    string         `json:"status"`
	Data      any            `json:"data,omitempty"`
	Error     string         `json:"error,omitempty"`
	Seal      *security.Seal `json:"seal,omitempty"`
}

// PortfolioRequest is the body of POST /api/v1/portfolio
type PortfolioRequest struct {
	Holdings []model.Holding `json:"holdings"`
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logrus.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("HTTP request")
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			s.errorResponse(w, "rate_limited", http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"version":   version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":        "operational",
		"version":       version,
		"started":       humanize.Time(s.started),
		"uptime":        time.Since(s.started).Round(time.Second).String(),
		"cache_entries": s.cache.Len(),
		"circuit_state": s.breaker.GetState().String(),
	}
	if s.signer != nil {
		status["signer"] = s.signer.Address()
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	const route = "risk"
	start := time.Now()

	report, err := s.core.RiskScore(r.Context(), r.URL.Query().Get("address"))
	if err != nil {
		if errors.Is(err, security.ErrInvalidAddress) {
			s.errorResponse(w, route, http.StatusBadRequest, err.Error())
			return
		}
		s.errorResponse(w, route, http.StatusInternalServerError, err.Error())
		return
	}
	s.respond(w, route, start, report)
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	const route = "portfolio"
	start := time.Now()

	var req PortfolioRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		s.errorResponse(w, route, http.StatusBadRequest, "Invalid request body")
		return
	}

	report, err := s.core.AnalyzePortfolio(r.Context(), req.Holdings)
	if err != nil {
		if errors.Is(err, validation.ErrInvalidHolding) {
			s.errorResponse(w, route, http.StatusBadRequest, err.Error())
			return
		}
		s.errorResponse(w, route, http.StatusInternalServerError, err.Error())
		return
	}
	s.respond(w, route, start, report)
}

func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	s.respond(w, "assets", time.Now(), map[string][]string{
		"symbols": s.core.Analyzer().Symbols(),
	})
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	s.respond(w, "sources", time.Now(), s.core.SourceStatuses(r.Context()))
}

func (s *Server) handleCircuitReset(w http.ResponseWriter, r *http.Request) {
	s.breaker.Reset()
	logrus.Info("Yield breaker reset via API")
	s.respond(w, "circuit", time.Now(), map[string]string{
		"state":   s.breaker.GetState().String(),
		"message": "Circuit breaker reset",
	})
}

// respond wraps data in the envelope, seals it when a signer is set and
// records the request metrics.
func (s *Server) respond(w http.ResponseWriter, route string, start time.Time, data any) {
	resp := Response{
		RequestID: uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Status:    "success",
		Data:      data,
	}

	if s.signer != nil {
		seal, err := s.signer.Seal(data)
		if err != nil {
			logrus.WithError(err).Warn("Failed to seal response")
		} else {
			resp.Seal = &seal
		}
	}

	s.metrics.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	s.metrics.requestCounter.WithLabelValues(route, "success").Inc()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) errorResponse(w http.ResponseWriter, route string, statusCode int, errorMsg string) {
	logrus.WithFields(logrus.Fields{
		"route":  route,
		"status": statusCode,
	}).Warn(errorMsg)
	s.metrics.requestCounter.WithLabelValues(route, "error").Inc()

	writeJSON(w, statusCode, Response{
		RequestID: uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Status:    "error",
		Error:     errorMsg,
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Debug("Failed to write response")
	}
}

// warmJob refreshes the source cache on a schedule
type warmJob struct {
	core    *aggregate.Core
	timeout time.Duration
}

func (j warmJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	j.core.Warm(ctx)
}
