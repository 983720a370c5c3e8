package engine

import (
	"context"
	"errors"
	"log/slog"

	"schedbot/internal/model"
	"schedbot/internal/platform"
	"schedbot/internal/store"
)

// Coordinator applies the per-message state machine. All writes go
// through status-conditional updates; a conflict means some other
// actor (a cancel, or a racing tick) already moved the message to a
// terminal state, and the losing transition is discarded.
type Coordinator struct {
	messages   store.MessageStore
	maxRetries int
	log        *slog.Logger
}

func NewCoordinator(messages store.MessageStore, maxRetries int, log *slog.Logger) *Coordinator {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Coordinator{messages: messages, maxRetries: maxRetries, log: log}
}

// Apply transitions msg according to the attempt result:
//
//	pending --success--------------------------> sent
//	pending --terminal failure-----------------> failed
//	pending --retryable, retries < budget------> pending (retry_count+1)
//	pending --retryable, budget exhausted------> failed
//
// It returns the outcome to audit and whether a terminal transition
// was actually applied by this call.
func (c *Coordinator) Apply(ctx context.Context, msg model.ScheduledMessage, res Result) (model.Outcome, bool, error) {
	switch {
	case res.Class == platform.ClassOK:
		if err := c.messages.MarkSent(ctx, msg.ID, res.At); err != nil {
			return model.OutcomeSuccess, false, c.discardConflict(msg.ID, "sent", err)
		}
		return model.OutcomeSuccess, true, nil

	case res.Class.Retryable() && msg.RetryCount < c.maxRetries:
		if err := c.messages.BumpRetry(ctx, msg.ID, res.Reason); err != nil {
			return model.OutcomeRetrying, false, c.discardConflict(msg.ID, "retry", err)
		}
		return model.OutcomeRetrying, false, nil

	default:
		// Non-retryable failure, or the retry budget is spent.
		if err := c.messages.MarkFailed(ctx, msg.ID, res.At, res.Reason); err != nil {
			return model.OutcomeFailed, false, c.discardConflict(msg.ID, "failed", err)
		}
		return model.OutcomeFailed, true, nil
	}
}

// discardConflict swallows lost optimistic-concurrency races; any
// other store error is passed through.
func (c *Coordinator) discardConflict(id, transition string, err error) error {
	if errors.Is(err, store.ErrConflict) {
		if c.log != nil {
			c.log.Debug("status transition lost race, discarded",
				slog.String("message_id", id),
				slog.String("transition", transition),
			)
		}
		return nil
	}
	return err
}
