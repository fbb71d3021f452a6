package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/1etu/easyupoo/internal/bookmarks"
	"github.com/1etu/easyupoo/internal/cache"
	"github.com/1etu/easyupoo/internal/fees"
	"github.com/1etu/easyupoo/internal/fetch"
	"github.com/1etu/easyupoo/internal/handlers"
	"github.com/1etu/easyupoo/internal/httpserver"
	"github.com/1etu/easyupoo/internal/kvstore"
	"github.com/1etu/easyupoo/internal/metrics"
	"github.com/1etu/easyupoo/internal/platform"
	"github.com/1etu/easyupoo/internal/prefs"
	"github.com/1etu/easyupoo/internal/rates"
	"github.com/1etu/easyupoo/internal/resolve"
	"github.com/1etu/easyupoo/pkg/logging/logging"
)

type Config struct {
	Port string

	StoreBackend string // "file", "redis", "postgres" or "memory"
	StorePath    string
	RedisAddr    string
	RedisPrefix  string
	PostgresDSN  string

	CacheMaxAge   time.Duration
	CacheMaxItems int

	FetchTimeout time.Duration
	FetchRetries int

	RatesRefresh time.Duration
}

func LoadConfig() Config {
	return Config{
		Port:          getenv("PORT", "8080"),
		StoreBackend:  getenv("STORE_BACKEND", "file"),
		StorePath:     getenv("STORE_PATH", "easyupoo.json"),
		RedisAddr:     getenv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPrefix:   getenv("REDIS_PREFIX", "easyupoo"),
		PostgresDSN:   os.Getenv("PG_DSN"),
		CacheMaxAge:   getduration("CACHE_MAX_AGE", 24*time.Hour),
		CacheMaxItems: getint("CACHE_MAX_ITEMS", 500),
		FetchTimeout:  getduration("FETCH_TIMEOUT", 10*time.Second),
		FetchRetries:  getint("FETCH_RETRIES", 0),
		RatesRefresh:  getduration("RATES_REFRESH_INTERVAL", time.Hour),
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("easyupoo exited with error: %v", err)
	}
}

func run() error {
	// ----- Logger -----
	logger := logging.DefaultLogger()
	defer logger.Sync()

	// ----- Metrics -----
	metrics.Register()

	// ----- Config -----
	cfg := LoadConfig()

	logger.Info("loaded config",
		zap.String("port", cfg.Port),
		zap.String("store_backend", cfg.StoreBackend),
		zap.Duration("cache_max_age", cfg.CacheMaxAge),
		zap.Int("cache_max_items", cfg.CacheMaxItems),
		zap.Duration("fetch_timeout", cfg.FetchTimeout),
	)

	ctx := context.Background()

	// ----- Redis client (only if needed) -----
	var redisClient *redis.Client
	if cfg.StoreBackend == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})

		// Fail fast if Redis is misconfigured
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("redis connection failed", zap.Error(err))
			return err
		}
		logger.Info("redis connection established",
			zap.String("addr", cfg.RedisAddr),
		)
	}

	// ----- Durable store -----
	store, err := kvstore.New(ctx, kvstore.Config{
		Backend: cfg.StoreBackend,
		Path:    cfg.StorePath,
		Prefix:  cfg.RedisPrefix,
		DSN:     cfg.PostgresDSN,
	}, redisClient)
	if err != nil {
		logger.Error("store initialization failed", zap.Error(err))
		return err
	}
	store = kvstore.NewLoggingStore(store)

	// ----- Price cache -----
	priceCache := cache.New[resolve.ResolvedPrice](store, cache.Options{
		MaxAge:   cfg.CacheMaxAge,
		MaxItems: cfg.CacheMaxItems,
	}, logger)
	priceCache.Init(ctx)

	// ----- Upstream fetch client -----
	fetchClient := fetch.NewClient(fetch.Config{
		Timeout:    cfg.FetchTimeout,
		MaxRetries: cfg.FetchRetries,
	}, logger)

	// ----- Exchange rates + fee engine -----
	ratesProvider := rates.NewProvider(rates.DefaultSources(fetchClient), cfg.RatesRefresh, logger)
	feeEngine := fees.NewEngine(ratesProvider)

	// ----- Resolution pipeline -----
	pipeline := resolve.New(priceCache, fetchClient, platform.Default(), logger)

	// ----- Bookmarks + preferences -----
	bookmarkManager := bookmarks.NewManager(store, logger)
	prefService := prefs.NewService(store, logger)

	// ----- Handlers -----
	h := httpserver.Handlers{
		Price:       handlers.NewPriceHandler(pipeline, feeEngine, prefService),
		Bookmarks:   handlers.NewBookmarkHandler(bookmarkManager),
		Preferences: handlers.NewPreferenceHandler(prefService),
		Cache:       handlers.NewCacheHandler(priceCache, prefService),
		Rates:       handlers.NewRatesHandler(ratesProvider),
		Events:      handlers.NewEventsHandler(prefService),
	}

	// ----- Router + middleware -----
	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, h)

	// ----- HTTP server -----
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting easyupoo",
		zap.String("addr", srv.Addr),
		zap.String("store_backend", cfg.StoreBackend),
	)

	// Start server in background
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()

	// ----- Graceful shutdown -----
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	// One final sweep so expired entries don't outlive the process.
	priceCache.Cleanup(shutdownCtx)

	logger.Info("server shutdown complete")
	return nil
}

// getenv returns the value of the environment variable key or def if not set.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getduration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getint(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
