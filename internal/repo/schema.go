package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema — таблицы журнала событий и статусов.
const schema = `
CREATE TABLE IF NOT EXISTS events (
	id          TEXT PRIMARY KEY,
	asset_ids   TEXT[]      NOT NULL,
	status      TEXT        NOT NULL DEFAULT 'PENDING',
	attempts    INT         NOT NULL DEFAULT 0,
	claimed_at  TIMESTAMPTZ,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS events_pending_idx
	ON events (created_at) WHERE status = 'PENDING';

CREATE TABLE IF NOT EXISTS event_status (
	event_id      TEXT PRIMARY KEY,
	verdict       TEXT        NOT NULL,
	submitted     INT         NOT NULL,
	success       INT         NOT NULL,
	retryable     INT         NOT NULL,
	non_retryable INT         NOT NULL,
	timed_out     INT         NOT NULL,
	buckets       JSONB       NOT NULL,
	cause         TEXT        NOT NULL DEFAULT '',
	started_at    TIMESTAMPTZ,
	finished_at   TIMESTAMPTZ,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

ALTER TABLE event_status ADD COLUMN IF NOT EXISTS cause TEXT NOT NULL DEFAULT '';
`

// Migrate создаёт таблицы, если их нет.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
