// Package main runs the restaking risk adapter: an HTTP service that scores
// operator risk and analyzes portfolios from upstream validator, AVS,
// liquidity, price and yield data, falling back to static values whenever an
// upstream is unavailable.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yourorg/restake-risk-ea/internal/aggregate"
	"github.com/yourorg/restake-risk-ea/internal/cache"
	"github.com/yourorg/restake-risk-ea/internal/circuitbreaker"
	"github.com/yourorg/restake-risk-ea/internal/config"
	"github.com/yourorg/restake-risk-ea/internal/fetch"
	"github.com/yourorg/restake-risk-ea/internal/history"
	"github.com/yourorg/restake-risk-ea/internal/model"
	"github.com/yourorg/restake-risk-ea/internal/otel"
	"github.com/yourorg/restake-risk-ea/internal/security"
	"github.com/yourorg/restake-risk-ea/internal/source"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("Failed to load .env file")
	}

	cfg := config.Load()
	setupLogging(cfg.LogLevel, cfg.LogFormat)

	if cfg.ScoringPath != "" {
		scoring, err := config.LoadScoring(cfg.ScoringPath)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to load scoring config")
		}
		cfg.Scoring = scoring
	}

	shutdownTracer := otel.InitTracer(cfg)
	defer shutdownTracer()

	breaker := circuitbreaker.New(circuitbreaker.Thresholds{
		MaxAPY:       cfg.MaxAPY,
		MaxTVLChange: cfg.MaxTVLChange,
		MinAssets:    1,
	}).WithResetDelay(cfg.CircuitResetDelay).
		WithTripCallback(func(reason string, batch model.YieldBook) {
			logrus.WithFields(logrus.Fields{
				"reason": reason,
				"assets": len(batch),
			}).Warn("Yield breaker tripped")
		})

	sourceMetrics := source.NewMetrics()
	sources := source.NewSet(cfg, fetch.OptionsFromConfig(cfg), breaker, source.Options{
		Timeout: cfg.SourceTimeout,
		Metrics: sourceMetrics,
	})
	sourceCache := cache.New(cfg.CacheTTL, cfg.CacheGrace)

	core := aggregate.New(sources, sourceCache, cfg.Scoring)

	sinks, closeSinks := setupHistory(cfg)
	defer closeSinks()
	if len(sinks) > 0 {
		async := history.NewAsync(sinks, 256, 5*time.Second)
		defer async.Close()
		core.WithHistory(async)
	}

	var signer *security.Signer
	if cfg.SigningKeyHex != "" {
		var err error
		signer, err = security.NewSigner(cfg.SigningKeyHex)
		if err != nil {
			logrus.WithError(err).Fatal("Invalid signing key")
		}
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
		logrus.Infof("Rate limiting initialized: %v req/s, burst: %d", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	srv := NewServer(core, sourceCache, breaker, signer, limiter, sourceMetrics.Collectors()...)

	scheduler := cron.New()
	if cfg.WarmSchedule != "" {
		job := warmJob{core: core, timeout: cfg.SourceTimeout + 5*time.Second}
		if _, err := scheduler.AddFunc(cfg.WarmSchedule, job.Run); err != nil {
			logrus.WithError(err).WithField("schedule", cfg.WarmSchedule).Fatal("Invalid warm schedule")
		}
		scheduler.Start()
		go job.Run()
	}

	logrus.WithFields(logrus.Fields{
		"port":          cfg.Port,
		"cache_ttl":     cfg.CacheTTL,
		"cache_grace":   cfg.CacheGrace,
		"warm_schedule": cfg.WarmSchedule,
		"signing":       signer != nil,
		"history_sinks": len(sinks),
	}).Info("Server initialized")

	run(srv, cfg.Port, scheduler)
}

// setupHistory opens the configured history sinks. Sinks that fail to open
// are skipped; history is never required to serve requests.
func setupHistory(cfg config.Config) (history.Multi, func()) {
	var (
		sinks   history.Multi
		closers []func()
	)

	if cfg.HistoryWebhookURL != "" {
		exporter, err := history.NewWebhookExporter(history.WebhookConfig{
			URL:    cfg.HistoryWebhookURL,
			APIKey: cfg.HistoryWebhookKey,
		}, nil)
		if err != nil {
			logrus.WithError(err).Warn("Failed to initialize history webhook")
		} else {
			sinks = append(sinks, exporter)
			closers = append(closers, func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := exporter.Stop(ctx); err != nil {
					logrus.WithError(err).Warn("Failed to flush history webhook")
				}
			})
			logrus.Info("History webhook initialized")
		}
	}

	if cfg.HistoryDatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		pg, err := history.OpenPostgres(ctx, cfg.HistoryDatabaseURL)
		cancel()
		if err != nil {
			logrus.WithError(err).Warn("Failed to initialize history database")
		} else {
			sinks = append(sinks, pg)
			closers = append(closers, func() { _ = pg.Close() })
			logrus.Info("History database initialized")
		}
	}

	return sinks, func() {
		for _, c := range closers {
			c()
		}
	}
}

// run serves until SIGINT or SIGTERM, then shuts down gracefully
func run(handler http.Handler, port string, scheduler *cron.Cron) {
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("Server starting on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Error starting server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Server shutting down...")
	<-scheduler.Stop().Done()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server shutdown failed: %v", err)
	}

	logrus.Info("Server stopped")
}

// setupLogging configures the logging for the application
func setupLogging(level, format string) {
	switch strings.ToLower(format) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	switch strings.ToLower(level) {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
}
