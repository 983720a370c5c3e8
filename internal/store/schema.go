package store

import (
	"context"
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS scheduled_messages (
	id           UUID PRIMARY KEY,
	owner_id     TEXT NOT NULL,
	target_kind  TEXT NOT NULL,
	target_id    TEXT NOT NULL,
	topic_id     INTEGER,
	group_id     TEXT,
	content      TEXT NOT NULL,
	scheduled_at TIMESTAMPTZ NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	retry_count  INTEGER NOT NULL DEFAULT 0,
	last_error   TEXT,
	executed_at  TIMESTAMPTZ,
	created_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scheduled_messages_due
	ON scheduled_messages (status, scheduled_at);
CREATE INDEX IF NOT EXISTS idx_scheduled_messages_owner
	ON scheduled_messages (owner_id, status);

CREATE TABLE IF NOT EXISTS user_preferences (
	owner_id              TEXT PRIMARY KEY,
	timezone              TEXT NOT NULL,
	max_pending           INTEGER NOT NULL,
	notifications_enabled BOOLEAN NOT NULL,
	created_at            TIMESTAMPTZ NOT NULL,
	updated_at            TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS execution_logs (
	id              UUID PRIMARY KEY,
	message_id      UUID NOT NULL,
	owner_id        TEXT NOT NULL,
	attempt_time    TIMESTAMPTZ NOT NULL,
	outcome         TEXT NOT NULL,
	error_detail    TEXT,
	target_kind     TEXT NOT NULL,
	target_id       TEXT NOT NULL,
	content_preview TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_execution_logs_message
	ON execution_logs (message_id, attempt_time DESC);
`

// Migrate creates the schema if it does not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
