package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Poller/internal/domain"
)

// StatusRepo — журнал статусов events. Реализует aggregator.Sink.
type StatusRepo struct {
	pool *pgxpool.Pool
}

// NewStatusRepo создаёт новый StatusRepo.
func NewStatusRepo(pool *pgxpool.Pool) *StatusRepo {
	return &StatusRepo{pool: pool}
}

// StatusRecord — сохранённый итог event.
type StatusRecord struct {
	EventID      string          `json:"event_id"`
	Verdict      domain.Verdict  `json:"verdict"`
	Submitted    int             `json:"submitted"`
	Success      int             `json:"success"`
	Retryable    int             `json:"retryable"`
	NonRetryable int             `json:"non_retryable"`
	TimedOut     int             `json:"timed_out"`
	Buckets      json.RawMessage `json:"buckets"`
	Cause        string          `json:"cause,omitempty"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NewStatusRecord строит запись из отчёта.
func NewStatusRecord(report domain.Report) (StatusRecord, error) {
	buckets, err := json.Marshal(report.Buckets)
	if err != nil {
		return StatusRecord{}, fmt.Errorf("marshal buckets: %w", err)
	}

	rec := StatusRecord{
		EventID:      report.EventID,
		Verdict:      report.Verdict,
		Submitted:    report.Submitted,
		Success:      len(report.Buckets.Success),
		Retryable:    len(report.Buckets.Retryable),
		NonRetryable: len(report.Buckets.NonRetryable),
		TimedOut:     report.TimedOut,
		Buckets:      buckets,
		Cause:        report.Cause,
	}
	if !report.StartedAt.IsZero() {
		rec.StartedAt = &report.StartedAt
	}
	if !report.FinishedAt.IsZero() {
		rec.FinishedAt = &report.FinishedAt
	}
	return rec, nil
}

// Report сохраняет отчёт и обновляет статус event в журнале.
func (r *StatusRepo) Report(ctx context.Context, report domain.Report) error {
	rec, err := NewStatusRecord(report)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO event_status (event_id, verdict, submitted, success, retryable,
		                          non_retryable, timed_out, buckets, cause, started_at, finished_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
		ON CONFLICT (event_id) DO UPDATE
		SET verdict = EXCLUDED.verdict, submitted = EXCLUDED.submitted, success = EXCLUDED.success,
		    retryable = EXCLUDED.retryable, non_retryable = EXCLUDED.non_retryable,
		    timed_out = EXCLUDED.timed_out, buckets = EXCLUDED.buckets, cause = EXCLUDED.cause,
		    started_at = EXCLUDED.started_at, finished_at = EXCLUDED.finished_at, updated_at = now()
	`,
		rec.EventID,
		rec.Verdict,
		rec.Submitted,
		rec.Success,
		rec.Retryable,
		rec.NonRetryable,
		rec.TimedOut,
		rec.Buckets,
		rec.Cause,
		rec.StartedAt,
		rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert event status: %w", err)
	}

	// event может отсутствовать в журнале (источник — очередь или симуляция)
	_, err = tx.Exec(ctx, `
		UPDATE events SET status = $2, claimed_at = NULL WHERE id = $1
	`, rec.EventID, EventStatusFor(rec.Verdict))
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetByEventID возвращает сохранённый итог event.
func (r *StatusRepo) GetByEventID(ctx context.Context, eventID string) (*StatusRecord, error) {
	var rec StatusRecord
	err := r.pool.QueryRow(ctx, `
		SELECT event_id, verdict, submitted, success, retryable, non_retryable,
		       timed_out, buckets, cause, started_at, finished_at, updated_at
		FROM event_status
		WHERE event_id = $1
	`, eventID).Scan(
		&rec.EventID,
		&rec.Verdict,
		&rec.Submitted,
		&rec.Success,
		&rec.Retryable,
		&rec.NonRetryable,
		&rec.TimedOut,
		&rec.Buckets,
		&rec.Cause,
		&rec.StartedAt,
		&rec.FinishedAt,
		&rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event status: %w", err)
	}
	return &rec, nil
}

// CountByVerdict возвращает число events по вердикту.
func (r *StatusRepo) CountByVerdict(ctx context.Context) (map[domain.Verdict]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT verdict, COUNT(*) FROM event_status GROUP BY verdict
	`)
	if err != nil {
		return nil, fmt.Errorf("count by verdict: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.Verdict]int)
	for rows.Next() {
		var v domain.Verdict
		var n int
		if err := rows.Scan(&v, &n); err != nil {
			return nil, fmt.Errorf("scan verdict count: %w", err)
		}
		counts[v] = n
	}
	return counts, rows.Err()
}
