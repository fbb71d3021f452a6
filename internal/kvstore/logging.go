package kvstore

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/1etu/easyupoo/internal/metrics"
	"github.com/1etu/easyupoo/pkg/logging/logging"
)

// LoggingStore wraps a Store with logging + metrics.
type LoggingStore struct {
	inner Store
}

func NewLoggingStore(inner Store) Store {
	return &LoggingStore{inner: inner}
}

func (s *LoggingStore) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	start := time.Now()
	docs, err := s.inner.Get(ctx, keys...)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	logger := logging.L(ctx)
	fields := []zap.Field{
		zap.String("store_op", "get"),
		zap.Strings("keys", keys),
		zap.Int("found", len(docs)),
		zap.Float64("latency_ms", latencyMs),
	}

	if err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("get").Inc()
		logger.Error("kv_store_get", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("kv_store_get", fields...)
	}

	return docs, err
}

func (s *LoggingStore) Set(ctx context.Context, docs map[string]json.RawMessage) error {
	start := time.Now()
	err := s.inner.Set(ctx, docs)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	logger := logging.L(ctx)
	fields := []zap.Field{
		zap.String("store_op", "set"),
		zap.Int("docs", len(docs)),
		zap.Float64("latency_ms", latencyMs),
	}

	if err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("set").Inc()
		logger.Error("kv_store_set", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("kv_store_set", fields...)
	}

	return err
}

func (s *LoggingStore) Remove(ctx context.Context, keys ...string) error {
	start := time.Now()
	err := s.inner.Remove(ctx, keys...)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	logger := logging.L(ctx)
	fields := []zap.Field{
		zap.String("store_op", "remove"),
		zap.Strings("keys", keys),
		zap.Float64("latency_ms", latencyMs),
	}

	if err != nil {
		metrics.StoreErrorsTotal.WithLabelValues("remove").Inc()
		logger.Error("kv_store_remove", append(fields, zap.Error(err))...)
	} else {
		logger.Debug("kv_store_remove", fields...)
	}

	return err
}
