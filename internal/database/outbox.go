package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	// OutboxStatusPending is a session event not yet on its stream.
	OutboxStatusPending = "pending"
	// OutboxStatusProcessed is a session event the relay has published.
	OutboxStatusProcessed = "processed"
	// OutboxStatusFailed is a session event waiting for its next attempt.
	OutboxStatusFailed = "failed"
	// OutboxStatusDeadLetter is a session event the relay gave up on.
	OutboxStatusDeadLetter = "dead_letter"

	// MaxRetryCount is how many failed publishes move an event to dead letter.
	MaxRetryCount = 5

	// PriceUpdatesStream receives an event for every persisted scrape session.
	PriceUpdatesStream = "stream:price_updates"

	// maxBackoff caps the delay between publish attempts.
	maxBackoff = 5 * time.Minute
)

// OutboxEvent is a row of outbox_event. Sessions write one inside the same
// transaction as their records; the relay moves it to TargetStream.
type OutboxEvent struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       json.RawMessage
	TargetStream  string
	Status        string
	RetryCount    int
	ErrorMessage  *string
	CreatedAt     time.Time
	ProcessedAt   *time.Time
	NextRetryAt   *time.Time
}

// Validate checks the fields every consumer relies on.
func (e *OutboxEvent) Validate() error {
	switch {
	case e.AggregateType == "":
		return fmt.Errorf("outbox event: aggregate type is required")
	case e.AggregateID == "":
		return fmt.Errorf("outbox event: aggregate id is required")
	case e.EventType == "":
		return fmt.Errorf("outbox event: event type is required")
	case len(e.Payload) == 0 || !json.Valid(e.Payload):
		return fmt.Errorf("outbox event: payload must be valid JSON")
	}
	return nil
}

// OutboxRepository reads and updates outbox_event.
type OutboxRepository struct {
	db *DB
}

func NewOutboxRepository(db *DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

const outboxColumns = `
	id, aggregate_type, aggregate_id, event_type, payload, target_stream,
	status, retry_count, error_message, created_at, processed_at, next_retry_at`

// InsertWithTx adds event inside tx, filling in id, status, stream and
// timestamps. The event is due immediately.
func (r *OutboxRepository) InsertWithTx(ctx context.Context, tx pgx.Tx, event *OutboxEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Status == "" {
		event.Status = OutboxStatusPending
	}
	if event.TargetStream == "" {
		event.TargetStream = PriceUpdatesStream
	}
	event.CreatedAt = time.Now()
	if event.NextRetryAt == nil {
		event.NextRetryAt = &event.CreatedAt
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_event (`+outboxColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL, $9, NULL, $10)`,
		event.ID, event.AggregateType, event.AggregateID, event.EventType, event.Payload, event.TargetStream,
		event.Status, event.RetryCount, event.CreatedAt, event.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event for %s: %w", event.AggregateID, err)
	}
	return nil
}

// GetPending returns up to limit due events, oldest session first.
func (r *OutboxRepository) GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+outboxColumns+`
		FROM outbox_event
		WHERE status IN ($1, $2) AND next_retry_at <= now()
		ORDER BY created_at, id
		LIMIT $3`,
		OutboxStatusPending, OutboxStatusFailed, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending events: %w", err)
	}

	events, err := pgx.CollectRows(rows, scanOutboxEvent)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending events: %w", err)
	}
	return events, nil
}

func scanOutboxEvent(row pgx.CollectableRow) (*OutboxEvent, error) {
	e := &OutboxEvent{}
	err := row.Scan(
		&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Payload, &e.TargetStream,
		&e.Status, &e.RetryCount, &e.ErrorMessage, &e.CreatedAt, &e.ProcessedAt, &e.NextRetryAt,
	)
	return e, err
}

// MarkProcessed records a successful publish.
func (r *OutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE outbox_event
		SET status = $1, processed_at = now(), error_message = NULL
		WHERE id = $2`,
		OutboxStatusProcessed, id)
	if err != nil {
		return fmt.Errorf("failed to mark event as processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("event not found: %s", id)
	}
	return nil
}

// MarkFailed records a failed publish. The next attempt is due after
// 2^retries seconds, capped at maxBackoff; the MaxRetryCount-th failure
// moves the event to dead letter.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, publishErr error) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE outbox_event
		SET retry_count = retry_count + 1,
			status = CASE WHEN retry_count + 1 >= $1 THEN $2 ELSE $3 END,
			error_message = $4,
			next_retry_at = now() + LEAST(power(2, retry_count + 1), $5) * interval '1 second'
		WHERE id = $6`,
		MaxRetryCount, OutboxStatusDeadLetter, OutboxStatusFailed,
		publishErr.Error(), maxBackoff.Seconds(), id)
	if err != nil {
		return fmt.Errorf("failed to mark event as failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("event not found: %s", id)
	}
	return nil
}

// Backlog counts events still owed to the stream and events given up on.
func (r *OutboxRepository) Backlog(ctx context.Context) (pending, deadLetter int64, err error) {
	err = r.db.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status IN ($1, $2)),
			COUNT(*) FILTER (WHERE status = $3)
		FROM outbox_event`,
		OutboxStatusPending, OutboxStatusFailed, OutboxStatusDeadLetter,
	).Scan(&pending, &deadLetter)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count outbox backlog: %w", err)
	}
	return pending, deadLetter, nil
}
