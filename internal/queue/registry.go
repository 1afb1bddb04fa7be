package queue

import (
	"context"
	"fmt"

	"github.com/jonesrussell/goingest/internal/config"
	"github.com/jonesrussell/goingest/internal/logger"
)

// Open resolves the configured backend and constructs it. The backend
// set is closed; an unknown name is a configuration error, not a
// fallback.
func Open(ctx context.Context, cfg *config.QueueConfig, log logger.Interface) (Queue, error) {
	switch cfg.Backend {
	case config.QueueBackendFilesystem:
		return NewFSQueue(FSQueueConfig{
			Dir:              cfg.Dir,
			RecoveryInterval: cfg.RecoveryInterval,
			MaxRetries:       cfg.MaxRetries,
		}, log)
	case config.QueueBackendRedis:
		return NewRedisQueue(ctx, RedisQueueConfig{
			Addr:             cfg.RedisAddr,
			Password:         cfg.RedisPassword,
			DB:               cfg.RedisDB,
			StreamPrefix:     cfg.StreamPrefix,
			RecoveryInterval: cfg.RecoveryInterval,
			MaxRetries:       cfg.MaxRetries,
		}, log)
	default:
		return nil, fmt.Errorf("unknown queue backend: %q", cfg.Backend)
	}
}
