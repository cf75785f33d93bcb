package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Poller/internal/domain"
)

// Статусы events в журнале.
const (
	EventPending    = "PENDING"
	EventProcessing = "PROCESSING"
	EventDone       = "DONE"
	EventFailed     = "FAILED"
	EventPartial    = "PARTIAL"
)

// EventRepo — журнал событий в Postgres. Реализует batcher.Source.
type EventRepo struct {
	pool *pgxpool.Pool
}

// NewEventRepo создаёт новый EventRepo.
func NewEventRepo(pool *pgxpool.Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

// Append добавляет event в журнал.
func (r *EventRepo) Append(ctx context.Context, ev domain.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO events (id, asset_ids, status)
		VALUES ($1, $2, 'PENDING')
		ON CONFLICT (id) DO NOTHING
	`, ev.ID, ev.AssetIDs)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Fetch забирает до max ожидающих events.
//
// Events переводятся в PROCESSING в той же операции; SKIP LOCKED
// позволяет нескольким poller'ам работать с одним журналом.
func (r *EventRepo) Fetch(ctx context.Context, max int) ([]domain.Event, error) {
	if max <= 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, `
		UPDATE events
		SET status = 'PROCESSING', claimed_at = now(), attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM events
			WHERE status = 'PENDING'
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, asset_ids
	`, max)
	if err != nil {
		return nil, fmt.Errorf("claim events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var ev domain.Event
		if err := rows.Scan(&ev.ID, &ev.AssetIDs); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// ReleaseStale возвращает в PENDING events, застрявшие в PROCESSING
// дольше olderThan (например, после падения poller'а).
func (r *EventRepo) ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE events
		SET status = 'PENDING', claimed_at = NULL
		WHERE status = 'PROCESSING' AND claimed_at < now() - make_interval(secs => $1)
	`, olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("release stale events: %w", err)
	}
	return tag.RowsAffected(), nil
}

// EventStatusFor отображает Verdict на статус в журнале.
//
// ALL_RETRYABLE возвращает event в очередь: следующий tick заберёт его снова.
func EventStatusFor(v domain.Verdict) string {
	switch v {
	case domain.VerdictAllSuccess:
		return EventDone
	case domain.VerdictAllRetryable:
		return EventPending
	case domain.VerdictAllNonRetryable:
		return EventFailed
	default:
		return EventPartial
	}
}
