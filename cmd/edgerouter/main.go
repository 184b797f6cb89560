package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pH0enix46/EMR/pkg/cache"
	"github.com/pH0enix46/EMR/pkg/config"
	"github.com/pH0enix46/EMR/pkg/metrics"
	"github.com/pH0enix46/EMR/pkg/ratelimit"
	"github.com/pH0enix46/EMR/pkg/router"
	"github.com/pH0enix46/EMR/pkg/server"
	"github.com/pH0enix46/EMR/pkg/version"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(lvl)
	}

	// Load configuration
	cfg, err := config.Load(os.Getenv("EDGE_CONFIG_FILE"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	metrics.Initialize(metrics.MetricsConfig{
		EnablePerRoute:       cfg.Metrics.EnablePerRoute,
		EnableDetailedStatus: cfg.Metrics.EnableDetailedStatus,
	})

	// Shared store, only when the redis backend is in play
	var store *cache.Cache
	if cfg.RateLimit.Backend == ratelimit.BackendRedis && cfg.RateLimit.RedisURL != "" {
		store, err = cache.NewCache(cache.Config{
			URL:         cfg.RateLimit.RedisURL,
			DialTimeout: 2 * time.Second,
			ReadTimeout: cfg.RateLimit.Timeout,
		})
		if err != nil {
			log.Fatalf("Failed to initialize cache: %v", err)
		}
		defer store.Close()
	}

	limiter, err := newLimiter(cfg, store, logger)
	if err != nil {
		log.Fatalf("Failed to initialize rate limiter: %v", err)
	}
	if c, ok := limiter.(io.Closer); ok {
		defer c.Close()
	}

	pipeline := router.New(&cfg.Policy, limiter, cfg.RateLimit.Timeout, logger)

	// Determine server type from command line
	serverType := "proxy"
	if len(os.Args) > 1 {
		serverType = os.Args[1]
	}

	var servers []server.Server
	switch serverType {
	case "admin":
		servers = append(servers, server.NewAdminServer(cfg, store, logger))
	case "proxy":
		servers = append(servers,
			server.NewProxyServer(cfg, store, logger, pipeline),
			server.NewAdminServer(cfg, store, logger),
		)
	default:
		log.Fatalf("Unknown server type: %s", serverType)
	}

	logger.WithFields(logrus.Fields{
		"version":    version.GetInfo().String(),
		"mode":       cfg.Mode,
		"server":     serverType,
		"proxy_port": cfg.Server.ProxyPort,
		"admin_port": cfg.Server.AdminPort,
		"upstream":   cfg.Upstream.URL,
		"ratelimit":  limiter != nil,
	}).Info("Starting edge router")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		wg.Add(1)
		go func(srv server.Server) {
			defer wg.Done()
			if err := srv.Run(); err != nil {
				errCh <- err
			}
		}(srv)
	}

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-errCh:
		logger.WithError(err).Error("Server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Server shutdown incomplete")
		}
	}
	wg.Wait()
}

// newLimiter builds the limiter for the configured backend, or nil when rate
// limiting is not enforced in this mode.
func newLimiter(cfg *config.Config, store *cache.Cache, logger *logrus.Logger) (ratelimit.Limiter, error) {
	if !cfg.RateLimitEnforced() {
		logger.WithFields(logrus.Fields{
			"backend": cfg.RateLimit.Backend,
			"mode":    cfg.Mode,
		}).Info("Rate limiting disabled")
		return nil, nil
	}

	rlCfg := ratelimit.Config{
		Backend:         cfg.RateLimit.Backend,
		Limit:           cfg.RateLimit.Limit,
		Window:          cfg.RateLimit.Window,
		KeyPrefix:       cfg.RateLimit.KeyPrefix,
		CleanupInterval: cfg.RateLimit.CleanupInterval,
	}
	if store != nil {
		rlCfg.RedisClient = store.Client()
	}
	return ratelimit.New(rlCfg)
}
