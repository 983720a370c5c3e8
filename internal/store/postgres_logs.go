package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"schedbot/internal/model"
)

type PostgresExecutionLogStore struct {
	db *sql.DB
}

func NewPostgresExecutionLogStore(db *sql.DB) *PostgresExecutionLogStore {
	return &PostgresExecutionLogStore{db: db}
}

func (s *PostgresExecutionLogStore) Append(ctx context.Context, entry model.ExecutionLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.AttemptTime.IsZero() {
		entry.AttemptTime = time.Now().UTC()
	}

	var detail *string
	if entry.ErrorDetail != nil {
		v := truncate(*entry.ErrorDetail, model.ErrorDetailMax)
		detail = &v
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO execution_logs
			(id, message_id, owner_id, attempt_time, outcome,
			 error_detail, target_kind, target_id, content_preview)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		entry.ID,
		entry.MessageID,
		entry.OwnerID,
		entry.AttemptTime.UTC(),
		string(entry.Outcome),
		detail,
		string(entry.TargetKind),
		entry.TargetID,
		model.Preview(entry.ContentPreview, model.PreviewMax),
	)
	return err
}

func (s *PostgresExecutionLogStore) ListForMessage(ctx context.Context, messageID string, limit int) ([]model.ExecutionLog, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_id, owner_id, attempt_time, outcome,
		       error_detail, target_kind, target_id, content_preview
		FROM execution_logs
		WHERE message_id = $1
		ORDER BY attempt_time DESC
		LIMIT $2
	`, messageID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ExecutionLog
	for rows.Next() {
		var (
			e       model.ExecutionLog
			outcome string
			kind    string
			detail  sql.NullString
		)
		if err := rows.Scan(
			&e.ID,
			&e.MessageID,
			&e.OwnerID,
			&e.AttemptTime,
			&outcome,
			&detail,
			&kind,
			&e.TargetID,
			&e.ContentPreview,
		); err != nil {
			return nil, err
		}
		e.Outcome = model.Outcome(outcome)
		e.TargetKind = model.TargetKind(kind)
		if detail.Valid {
			v := detail.String
			e.ErrorDetail = &v
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
