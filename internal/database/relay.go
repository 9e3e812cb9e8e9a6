package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisClient is the part of the Redis client the relay publishes with.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
}

// OutboxRepo is the part of OutboxRepository the relay drives.
type OutboxRepo interface {
	GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, err error) error
}

// RelayConfig contains configuration for the relay
type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// Source names this service on every stream entry.
	Source string
	// MaxLen trims each stream to roughly this many entries. Zero keeps all.
	MaxLen int64
}

// Relay moves committed session events from outbox_event onto their Redis
// stream. An entry carries the session counters as top-level fields next to
// the full payload in data.
type Relay struct {
	redis     RedisClient
	outbox    OutboxRepo
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	source    string
	maxLen    int64
	wake      chan struct{}
}

// sessionHeader is the part of a session payload copied onto the entry.
type sessionHeader struct {
	StartTime     time.Time `json:"start_time"`
	TotalProducts int       `json:"total_products"`
	TotalResults  int       `json:"total_results"`
	SuccessCount  int       `json:"success_count"`
}

// NewRelay creates a relay over outbox publishing through client.
func NewRelay(outbox OutboxRepo, client RedisClient, logger *slog.Logger, config RelayConfig) *Relay {
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.Source == "" {
		config.Source = "vn-price-scraper"
	}

	return &Relay{
		redis:     client,
		outbox:    outbox,
		logger:    logger.With("component", "relay"),
		interval:  config.PollInterval,
		batchSize: config.BatchSize,
		source:    config.Source,
		maxLen:    config.MaxLen,
		wake:      make(chan struct{}, 1),
	}
}

// Notify asks a running relay to flush now instead of at the next poll.
// It never blocks.
func (r *Relay) Notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run flushes on start, on every poll tick and after Notify until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("relay started", "interval", r.interval, "batch_size", r.batchSize, "max_len", r.maxLen)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("failed to flush outbox", "error", err)
		}

		select {
		case <-ctx.Done():
			r.logger.Info("relay stopped")
			return ctx.Err()
		case <-ticker.C:
		case <-r.wake:
		}
	}
}

// Flush publishes due events batch by batch until a batch comes back short
// or an event fails, and returns how many reached Redis.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	published := 0
	for {
		if err := ctx.Err(); err != nil {
			return published, err
		}

		batch, err := r.outbox.GetPending(ctx, r.batchSize)
		if err != nil {
			return published, fmt.Errorf("failed to get pending events: %w", err)
		}

		failed := false
		for _, event := range batch {
			if err := r.publish(ctx, event); err != nil {
				r.logger.Error("failed to publish session event",
					"session_id", event.AggregateID,
					"event_id", event.ID,
					"attempt", event.RetryCount+1,
					"error", err)
				failed = true
				continue
			}
			published++
		}

		// A failed event may still be due, so re-reading would spin on it.
		if failed || len(batch) < r.batchSize {
			if published > 0 {
				r.logger.Debug("outbox flushed", "published", published)
			}
			return published, nil
		}
	}
}

func (r *Relay) publish(ctx context.Context, event *OutboxEvent) error {
	values, err := r.entry(event)
	if err == nil {
		args := &redis.XAddArgs{Stream: event.TargetStream, Values: values}
		if r.maxLen > 0 {
			args.MaxLen = r.maxLen
			args.Approx = true
		}
		if err = r.redis.XAdd(ctx, args).Err(); err != nil {
			err = fmt.Errorf("failed to publish to redis: %w", err)
		}
	}

	if err != nil {
		if markErr := r.outbox.MarkFailed(ctx, event.ID, err); markErr != nil {
			r.logger.Error("failed to mark event as failed", "event_id", event.ID, "error", markErr)
		}
		return err
	}

	if err := r.outbox.MarkProcessed(ctx, event.ID); err != nil {
		return fmt.Errorf("failed to mark event as processed: %w", err)
	}

	r.logger.Info("session event published",
		"session_id", event.AggregateID,
		"stream", event.TargetStream,
		"success_count", values["success_count"],
		"total_results", values["total_results"])
	return nil
}

// entry builds the stream fields for one session event.
func (r *Relay) entry(event *OutboxEvent) (map[string]interface{}, error) {
	var header sessionHeader
	if err := json.Unmarshal(event.Payload, &header); err != nil {
		return nil, fmt.Errorf("failed to decode session payload: %w", err)
	}

	return map[string]interface{}{
		"event_id":       event.ID.String(),
		"event_type":     event.EventType,
		"session_id":     event.AggregateID,
		"start_time":     header.StartTime.UTC().Format(time.RFC3339),
		"total_products": header.TotalProducts,
		"total_results":  header.TotalResults,
		"success_count":  header.SuccessCount,
		"source":         r.source,
		"attempt":        event.RetryCount + 1,
		"data":           string(event.Payload),
	}, nil
}
