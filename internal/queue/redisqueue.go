package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/goingest/internal/domain"
	"github.com/jonesrussell/goingest/internal/logger"
)

const (
	// consumerGroup is the shared consumer group for all workers.
	consumerGroup = "workers"

	// payloadField is the stream entry field holding the envelope.
	payloadField = "payload"

	// recoveryBatchSize bounds how many stale entries one recovery
	// pass reclaims.
	recoveryBatchSize = 10
)

// RedisQueueConfig configures the Redis Streams queue backend.
type RedisQueueConfig struct {
	// Addr is the Redis server address.
	Addr string

	// Password is the optional Redis password.
	Password string

	// DB is the Redis database number.
	DB int

	// StreamPrefix namespaces the job and dead-letter streams.
	StreamPrefix string

	// RecoveryInterval throttles stale-claim scans, as with the
	// filesystem backend.
	RecoveryInterval time.Duration

	// MaxRetries is the delivery attempt limit before escalation.
	MaxRetries int
}

// RedisQueue is a job queue on Redis Streams. Claims are pending
// entries in a consumer group; stale claims are reclaimed with
// XPENDING and XCLAIM using the visibility timeout as minimum idle
// time.
type RedisQueue struct {
	client   *redis.Client
	cfg      RedisQueueConfig
	consumer string
	logger   logger.Interface

	mu           sync.Mutex
	lastRecovery time.Time
}

// NewRedisQueue connects to Redis and ensures the consumer group
// exists.
func NewRedisQueue(ctx context.Context, cfg RedisQueueConfig, log logger.Interface) (*RedisQueue, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	if cfg.MaxRetries <= 0 {
		return nil, errors.New("max retries must be positive")
	}
	if cfg.StreamPrefix == "" {
		cfg.StreamPrefix = "goingest"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	q := &RedisQueue{
		client:   client,
		cfg:      cfg,
		consumer: "consumer-" + uuid.NewString(),
		logger:   log.WithComponent("redisqueue"),
	}

	err := client.XGroupCreateMkStream(ctx, q.jobStream(), consumerGroup, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		client.Close()
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return q, nil
}

func (q *RedisQueue) jobStream() string   { return q.cfg.StreamPrefix + ":jobs" }
func (q *RedisQueue) errorStream() string { return q.cfg.StreamPrefix + ":errors" }

// Send enqueues a job.
func (q *RedisQueue) Send(ctx context.Context, job *domain.Job) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	env := envelope{Job: job, RetryCount: 0, EnqueuedAt: time.Now().UTC()}
	return q.publish(ctx, q.jobStream(), &env)
}

// publish appends an envelope to a stream.
func (q *RedisQueue) publish(ctx context.Context, stream string, env *envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	err = q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{payloadField: string(data)},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to add job to stream: %w", err)
	}
	return nil
}

// Receive claims the next job. A throttled recovery pass first
// requeues entries whose consumer went idle past the visibility
// window.
func (q *RedisQueue) Receive(ctx context.Context, visibility time.Duration) (*Message, error) {
	if err := q.maybeRecover(ctx, visibility); err != nil {
		q.logger.Error("recovery pass failed", "error", err)
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    consumerGroup,
		Consumer: q.consumer,
		Streams:  []string{q.jobStream(), ">"},
		Count:    1,
		Block:    -1,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	for _, stream := range streams {
		for _, entry := range stream.Messages {
			msg, err := q.decodeEntry(entry)
			if err != nil {
				q.logger.Error("discarding undecodable stream entry", "id", entry.ID, "error", err)
				q.ack(ctx, entry.ID)
				continue
			}
			return msg, nil
		}
	}
	return nil, nil
}

// Delete settles a message.
func (q *RedisQueue) Delete(ctx context.Context, msg *Message) error {
	return q.ackErr(ctx, msg.receipt)
}

// Return requeues a message for immediate redelivery. The retry count
// is left untouched: an explicit nack retries indefinitely, only
// stale-claim recovery counts attempts toward escalation.
func (q *RedisQueue) Return(ctx context.Context, msg *Message) error {
	env := envelope{Job: msg.Job, RetryCount: msg.RetryCount, EnqueuedAt: msg.EnqueuedAt}
	if err := q.publish(ctx, q.jobStream(), &env); err != nil {
		return err
	}
	return q.ackErr(ctx, msg.receipt)
}

// Heartbeat reclaims the entry to this consumer, resetting its idle
// time so recovery leaves it alone.
func (q *RedisQueue) Heartbeat(ctx context.Context, msg *Message) error {
	err := q.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   q.jobStream(),
		Group:    consumerGroup,
		Consumer: q.consumer,
		MinIdle:  0,
		Messages: []string{msg.receipt},
	}).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to refresh claim: %w", err)
	}
	return nil
}

// Depth reports the stream length, including entries pending delivery
// acknowledgement.
func (q *RedisQueue) Depth(ctx context.Context) (int, error) {
	n, err := q.client.XLen(ctx, q.jobStream()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read stream length: %w", err)
	}
	return int(n), nil
}

// ErrorDepth reports the dead-letter stream length.
func (q *RedisQueue) ErrorDepth(ctx context.Context) (int, error) {
	n, err := q.client.XLen(ctx, q.errorStream()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read error stream length: %w", err)
	}
	return int(n), nil
}

// Close closes the Redis connection.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// maybeRecover requeues pending entries idle past the visibility
// window. The replacement entry carries the incremented retry count;
// the stale entry is acknowledged only after the replacement is
// durable.
func (q *RedisQueue) maybeRecover(ctx context.Context, visibility time.Duration) error {
	q.mu.Lock()
	if q.cfg.RecoveryInterval > 0 && time.Since(q.lastRecovery) < q.cfg.RecoveryInterval {
		q.mu.Unlock()
		return nil
	}
	q.lastRecovery = time.Now()
	q.mu.Unlock()

	pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: q.jobStream(),
		Group:  consumerGroup,
		Idle:   visibility,
		Start:  "-",
		End:    "+",
		Count:  recoveryBatchSize,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("failed to list pending entries: %w", err)
	}

	for _, p := range pending {
		entries, err := q.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   q.jobStream(),
			Group:    consumerGroup,
			Consumer: q.consumer,
			MinIdle:  visibility,
			Messages: []string{p.ID},
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return fmt.Errorf("failed to claim stale entry: %w", err)
		}

		for _, entry := range entries {
			msg, err := q.decodeEntry(entry)
			if err != nil {
				q.logger.Error("discarding undecodable stale entry", "id", entry.ID, "error", err)
				q.ack(ctx, entry.ID)
				continue
			}

			env := envelope{Job: msg.Job, RetryCount: msg.RetryCount + 1, EnqueuedAt: msg.EnqueuedAt}
			target := q.jobStream()
			if env.RetryCount > q.cfg.MaxRetries {
				target = q.errorStream()
				q.logger.Warn("job exhausted retries, escalating",
					"file_url", env.Job.FileURL, "retries", env.RetryCount)
			} else {
				q.logger.Warn("recovering stale job",
					"file_url", env.Job.FileURL, "retries", env.RetryCount)
			}

			if err := q.publish(ctx, target, &env); err != nil {
				return err
			}
			q.ack(ctx, entry.ID)
		}
	}
	return nil
}

// decodeEntry converts a stream entry into a Message.
func (q *RedisQueue) decodeEntry(entry redis.XMessage) (*Message, error) {
	raw, ok := entry.Values[payloadField].(string)
	if !ok {
		return nil, errors.New("stream entry missing payload field")
	}
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stream entry: %w", err)
	}
	if env.Job == nil {
		return nil, errors.New("stream entry missing job payload")
	}
	return &Message{
		ID:         entry.ID,
		Job:        env.Job,
		RetryCount: env.RetryCount,
		EnqueuedAt: env.EnqueuedAt,
		receipt:    entry.ID,
	}, nil
}

// ack acknowledges and trims a settled entry, logging failures.
func (q *RedisQueue) ack(ctx context.Context, id string) {
	if err := q.ackErr(ctx, id); err != nil {
		q.logger.Error("failed to ack stream entry", "id", id, "error", err)
	}
}

func (q *RedisQueue) ackErr(ctx context.Context, id string) error {
	if err := q.client.XAck(ctx, q.jobStream(), consumerGroup, id).Err(); err != nil {
		return fmt.Errorf("failed to ack stream entry: %w", err)
	}
	if err := q.client.XDel(ctx, q.jobStream(), id).Err(); err != nil {
		return fmt.Errorf("failed to trim stream entry: %w", err)
	}
	return nil
}
