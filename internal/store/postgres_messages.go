package store

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"schedbot/internal/model"
)

type PostgresMessageStore struct {
	db *sql.DB
}

func NewPostgresMessageStore(db *sql.DB) *PostgresMessageStore {
	return &PostgresMessageStore{db: db}
}

const messageColumns = `
	id, owner_id, target_kind, target_id, topic_id, group_id, content,
	scheduled_at, status, retry_count, last_error, executed_at, created_at`

func (s *PostgresMessageStore) Create(ctx context.Context, msg *model.ScheduledMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msg.Status = model.StatusPending
	msg.ScheduledAt = msg.ScheduledAt.UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduled_messages
			(id, owner_id, target_kind, target_id, topic_id, group_id,
			 content, scheduled_at, status, retry_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10)
	`,
		msg.ID,
		msg.OwnerID,
		string(msg.TargetKind),
		msg.TargetID,
		msg.TopicID,
		msg.GroupID,
		msg.Content,
		msg.ScheduledAt,
		string(msg.Status),
		msg.CreatedAt,
	)
	return err
}

func (s *PostgresMessageStore) GetByID(ctx context.Context, id string) (model.ScheduledMessage, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM scheduled_messages
		WHERE id = $1
	`, id)

	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ScheduledMessage{}, ErrNotFound
	}
	return msg, err
}

func (s *PostgresMessageStore) ListForOwner(ctx context.Context, ownerID string, status *model.Status, limit, offset int) ([]model.ScheduledMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT ` + messageColumns + `
		FROM scheduled_messages
		WHERE owner_id = $1`
	args := []any{ownerID}

	if status != nil {
		query += ` AND status = $2`
		args = append(args, string(*status))
	}
	query += ` ORDER BY scheduled_at DESC LIMIT ` + placeholder(len(args)+1) + ` OFFSET ` + placeholder(len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMessages(rows)
}

func (s *PostgresMessageStore) CountPending(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM scheduled_messages
		WHERE owner_id = $1 AND status = 'pending'
	`, ownerID).Scan(&n)
	return n, err
}

func (s *PostgresMessageStore) DuePending(ctx context.Context, now time.Time, limit int) ([]model.ScheduledMessage, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be > 0")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM scheduled_messages
		WHERE status = 'pending' AND scheduled_at <= $1
		ORDER BY scheduled_at ASC
		LIMIT $2
	`, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMessages(rows)
}

func (s *PostgresMessageStore) MarkSent(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_messages
		SET status = 'sent', executed_at = $2
		WHERE id = $1 AND status = 'pending'
	`, id, at.UTC())
	return conditional(res, err)
}

func (s *PostgresMessageStore) MarkFailed(ctx context.Context, id string, at time.Time, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_messages
		SET status = 'failed', executed_at = $2, last_error = $3
		WHERE id = $1 AND status = 'pending'
	`, id, at.UTC(), truncate(reason, model.ErrorDetailMax))
	return conditional(res, err)
}

func (s *PostgresMessageStore) BumpRetry(ctx context.Context, id string, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_messages
		SET retry_count = retry_count + 1, last_error = $2
		WHERE id = $1 AND status = 'pending'
	`, id, truncate(reason, model.ErrorDetailMax))
	return conditional(res, err)
}

func (s *PostgresMessageStore) Cancel(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_messages
		SET status = 'cancelled'
		WHERE id = $1 AND owner_id = $2 AND status = 'pending'
	`, id, ownerID)
	return conditional(res, err)
}

func (s *PostgresMessageStore) Edit(ctx context.Context, ownerID, id string, scheduledAt *time.Time, content *string) error {
	if scheduledAt == nil && content == nil {
		return nil
	}

	query := `UPDATE scheduled_messages SET `
	args := []any{}
	if scheduledAt != nil {
		args = append(args, scheduledAt.UTC())
		query += `scheduled_at = ` + placeholder(len(args))
	}
	if content != nil {
		if len(args) > 0 {
			query += `, `
		}
		args = append(args, *content)
		query += `content = ` + placeholder(len(args))
	}
	args = append(args, id, ownerID)
	query += ` WHERE id = ` + placeholder(len(args)-1) +
		` AND owner_id = ` + placeholder(len(args)) +
		` AND status = 'pending'`

	res, err := s.db.ExecContext(ctx, query, args...)
	return conditional(res, err)
}

// conditional maps a zero-row update to ErrConflict: the guarded
// status no longer held when the update ran.
func conditional(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

// truncate bounds s to at most max bytes without splitting a rune, so
// the stored text stays valid UTF-8.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (model.ScheduledMessage, error) {
	var (
		m          model.ScheduledMessage
		kind       string
		status     string
		topicID    sql.NullInt64
		groupID    sql.NullString
		lastErr    sql.NullString
		executedAt sql.NullTime
	)

	err := row.Scan(
		&m.ID,
		&m.OwnerID,
		&kind,
		&m.TargetID,
		&topicID,
		&groupID,
		&m.Content,
		&m.ScheduledAt,
		&status,
		&m.RetryCount,
		&lastErr,
		&executedAt,
		&m.CreatedAt,
	)
	if err != nil {
		return model.ScheduledMessage{}, err
	}

	m.TargetKind = model.TargetKind(kind)
	m.Status = model.Status(status)

	if topicID.Valid {
		v := int(topicID.Int64)
		m.TopicID = &v
	}
	if groupID.Valid {
		v := groupID.String
		m.GroupID = &v
	}
	if lastErr.Valid {
		v := lastErr.String
		m.LastError = &v
	}
	if executedAt.Valid {
		v := executedAt.Time
		m.ExecutedAt = &v
	}
	return m, nil
}

func collectMessages(rows *sql.Rows) ([]model.ScheduledMessage, error) {
	var out []model.ScheduledMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
