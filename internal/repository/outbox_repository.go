package repository

import (
	"context"
	"time"

	"github.com/spec-kit/opsdesk/internal/events"
	"github.com/spec-kit/opsdesk/internal/persistence"
)

// OutboxRecord is a claimed outbox row.
type OutboxRecord struct {
	Event    events.Event
	Attempts int
}

// OutboxRepository stores lifecycle events until they are relayed.
type OutboxRepository interface {
	// Append writes the event using the transaction bound to ctx, if any.
	Append(ctx context.Context, event events.Event) error
	// Claim moves up to limit new rows to processing and returns them.
	Claim(ctx context.Context, limit int) ([]OutboxRecord, error)
	MarkProcessed(ctx context.Context, ids []string) error
	// MarkFailed records a failed delivery. Rows that reach maxAttempts are
	// parked as failed; the rest go back to new.
	MarkFailed(ctx context.Context, id string, cause error, maxAttempts int) error
	// RequeueStale returns rows stuck in processing for longer than after.
	RequeueStale(ctx context.Context, after time.Duration) (int64, error)
}

type outboxRepository struct {
	db *persistence.Gateway
}

// NewOutboxRepository instantiates repository.
func NewOutboxRepository(db *persistence.Gateway) OutboxRepository {
	return &outboxRepository{db: db}
}

func (r *outboxRepository) Append(ctx context.Context, e events.Event) error {
	const query = `
        INSERT INTO outbox (id, event_type, entity_kind, entity_id, actor, payload, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, 'new', $7, NOW())`
	_, err := r.db.Conn(ctx).Exec(ctx, query,
		e.ID, e.Type, e.Entity, e.EntityID, e.Actor, []byte(e.Payload), e.Timestamp)
	return persistence.Classify(err)
}

func (r *outboxRepository) Claim(ctx context.Context, limit int) ([]OutboxRecord, error) {
	const query = `
        WITH claimed AS (
            SELECT id
            FROM outbox
            WHERE status = 'new'
            ORDER BY created_at ASC
            LIMIT $1
            FOR UPDATE SKIP LOCKED
        )
        UPDATE outbox
        SET status = 'processing', updated_at = NOW()
        WHERE id IN (SELECT id FROM claimed)
        RETURNING id::text, event_type, entity_kind, entity_id, actor, payload, created_at, attempts`

	rows, err := r.db.Conn(ctx).Query(ctx, query, limit)
	if err != nil {
		return nil, persistence.Classify(err)
	}
	defer rows.Close()

	var records []OutboxRecord
	for rows.Next() {
		var rec OutboxRecord
		var payload []byte
		if err := rows.Scan(
			&rec.Event.ID,
			&rec.Event.Type,
			&rec.Event.Entity,
			&rec.Event.EntityID,
			&rec.Event.Actor,
			&payload,
			&rec.Event.Timestamp,
			&rec.Attempts,
		); err != nil {
			return nil, persistence.Classify(err)
		}
		rec.Event.Payload = payload
		records = append(records, rec)
	}
	return records, persistence.Classify(rows.Err())
}

func (r *outboxRepository) MarkProcessed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecuteNonQuery(ctx,
		`UPDATE outbox SET status = 'processed', last_error = NULL, updated_at = NOW() WHERE id = ANY($1::uuid[])`, ids)
	return err
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string, cause error, maxAttempts int) error {
	const query = `
        UPDATE outbox
        SET attempts = attempts + 1,
            status = CASE WHEN attempts + 1 >= $2 THEN 'failed' ELSE 'new' END,
            last_error = $3,
            updated_at = NOW()
        WHERE id = $1::uuid`
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := r.db.ExecuteNonQuery(ctx, query, id, maxAttempts, msg)
	return err
}

func (r *outboxRepository) RequeueStale(ctx context.Context, after time.Duration) (int64, error) {
	const query = `
        UPDATE outbox SET status = 'new', updated_at = NOW()
        WHERE status = 'processing' AND updated_at < NOW() - make_interval(secs => $1)`
	return r.db.ExecuteNonQuery(ctx, query, after.Seconds())
}
