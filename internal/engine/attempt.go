package engine

import (
	"context"
	"fmt"
	"time"

	"schedbot/internal/model"
	"schedbot/internal/platform"
)

// Messenger is the chat-platform collaborator the engine delivers
// through.
type Messenger interface {
	Resolve(ctx context.Context, msg model.ScheduledMessage) (platform.Target, error)
	Send(ctx context.Context, to platform.Target, text string) error
	SendDirect(ctx context.Context, userID, text string) error
}

// Result is the classified outcome of a single delivery attempt.
type Result struct {
	Class  platform.Class
	Reason string
	At     time.Time
}

func (r Result) Success() bool { return r.Class == platform.ClassOK }

// Attempter resolves a message's target and tries to send it. It owns
// no state transitions; it only classifies what happened.
type Attempter struct {
	messenger Messenger
	classify  func(error) platform.Class
	timeout   time.Duration
	now       func() time.Time
}

func NewAttempter(messenger Messenger, classify func(error) platform.Class, timeout time.Duration) *Attempter {
	if classify == nil {
		classify = platform.Classify
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Attempter{
		messenger: messenger,
		classify:  classify,
		timeout:   timeout,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (a *Attempter) Attempt(ctx context.Context, msg model.ScheduledMessage) Result {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	target, err := a.messenger.Resolve(ctx, msg)
	if err != nil {
		return a.failure("resolve", err)
	}

	err = a.messenger.Send(ctx, target, deliveryText(msg))
	if err != nil {
		return a.failure("send", err)
	}

	return Result{Class: platform.ClassOK, At: a.now()}
}

func (a *Attempter) failure(stage string, err error) Result {
	class := a.classify(err)
	if class == platform.ClassOK {
		class = platform.ClassUnknown
	}
	return Result{
		Class:  class,
		Reason: fmt.Sprintf("%s: %s: %v", class, stage, err),
		At:     a.now(),
	}
}

// deliveryText annotates direct messages sent to someone other than
// the scheduling owner, so the recipient knows where it came from.
func deliveryText(msg model.ScheduledMessage) string {
	if msg.TargetKind == model.TargetDM && msg.TargetID != msg.OwnerID {
		return fmt.Sprintf("📨 Scheduled message from %s:\n\n%s", msg.OwnerID, msg.Content)
	}
	return msg.Content
}
