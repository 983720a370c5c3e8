package engine

import (
	"context"
	"log/slog"

	"schedbot/internal/model"
	"schedbot/internal/store"
)

// Auditor appends one execution-log row per delivery attempt. The log
// is best-effort observability: append failures are logged and never
// block the status transition.
type Auditor struct {
	logs store.ExecutionLogStore
	log  *slog.Logger
}

func NewAuditor(logs store.ExecutionLogStore, log *slog.Logger) *Auditor {
	return &Auditor{logs: logs, log: log}
}

func (a *Auditor) Record(ctx context.Context, msg model.ScheduledMessage, res Result, outcome model.Outcome) {
	entry := model.ExecutionLog{
		MessageID:      msg.ID,
		OwnerID:        msg.OwnerID,
		AttemptTime:    res.At,
		Outcome:        outcome,
		TargetKind:     msg.TargetKind,
		TargetID:       msg.TargetID,
		ContentPreview: model.Preview(msg.Content, model.PreviewMax),
	}
	if res.Reason != "" {
		reason := res.Reason
		entry.ErrorDetail = &reason
	}

	if err := a.logs.Append(ctx, entry); err != nil && a.log != nil {
		a.log.Warn("execution log append failed",
			slog.String("message_id", msg.ID),
			slog.String("outcome", string(outcome)),
			slog.Any("err", err),
		)
	}
}
