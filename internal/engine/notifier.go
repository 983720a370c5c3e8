package engine

import (
	"context"
	"fmt"
	"log/slog"

	"schedbot/internal/model"
	"schedbot/internal/store"
)

// Notifier tells an owner about a terminal outcome, when their
// preferences allow it. Notification failures (owner blocked the bot,
// never started a chat with it) are swallowed and logged; they never
// affect the message's status.
type Notifier struct {
	messenger Messenger
	prefs     store.PreferenceStore
	log       *slog.Logger
}

func NewNotifier(messenger Messenger, prefs store.PreferenceStore, log *slog.Logger) *Notifier {
	return &Notifier{messenger: messenger, prefs: prefs, log: log}
}

func (n *Notifier) NotifyOwner(ctx context.Context, msg model.ScheduledMessage, outcome model.Outcome, reason string) {
	prefs, err := n.prefs.GetOrCreate(ctx, msg.OwnerID)
	if err != nil {
		n.warn(msg, fmt.Errorf("load preferences: %w", err))
		return
	}
	if !prefs.NotificationsEnabled {
		return
	}

	if err := n.messenger.SendDirect(ctx, msg.OwnerID, summary(msg, outcome, reason)); err != nil {
		n.warn(msg, err)
	}
}

func summary(msg model.ScheduledMessage, outcome model.Outcome, reason string) string {
	preview := model.Preview(msg.Content, 100)

	if outcome == model.OutcomeSuccess {
		return fmt.Sprintf("✅ Scheduled message sent.\nID: %s\nPreview: %s", msg.ID, preview)
	}

	text := fmt.Sprintf("❌ Scheduled message could not be sent.\nID: %s", msg.ID)
	if reason != "" {
		text += "\nError: " + reason
	}
	return text + "\nPreview: " + preview
}

func (n *Notifier) warn(msg model.ScheduledMessage, err error) {
	if n.log != nil {
		n.log.Warn("owner notification failed",
			slog.String("message_id", msg.ID),
			slog.String("owner_id", msg.OwnerID),
			slog.Any("err", err),
		)
	}
}
