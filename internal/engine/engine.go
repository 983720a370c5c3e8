// Package engine implements the scheduled delivery pipeline: poll the
// store for due messages, attempt delivery, apply retry/status
// transitions, audit every attempt, and notify owners of terminal
// outcomes.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"schedbot/internal/model"
	"schedbot/internal/platform"
	"schedbot/internal/store"
)

type Options struct {
	Messages  store.MessageStore
	Logs      store.ExecutionLogStore
	Prefs     store.PreferenceStore
	Messenger Messenger

	// Classify defaults to platform.Classify.
	Classify func(error) platform.Class

	MaxRetries  int           // default 3
	BatchSize   int           // default 100
	Concurrency int           // default 4
	SendTimeout time.Duration // default 10s

	Logger *slog.Logger
	Now    func() time.Time
}

type Engine struct {
	messages    store.MessageStore
	attempter   *Attempter
	coordinator *Coordinator
	auditor     *Auditor
	notifier    *Notifier

	batchSize   int
	concurrency int
	now         func() time.Time
	log         *slog.Logger
}

func New(opts Options) (*Engine, error) {
	if opts.Messages == nil {
		return nil, errors.New("engine: message store must not be nil")
	}
	if opts.Logs == nil {
		return nil, errors.New("engine: execution log store must not be nil")
	}
	if opts.Prefs == nil {
		return nil, errors.New("engine: preference store must not be nil")
	}
	if opts.Messenger == nil {
		return nil, errors.New("engine: messenger must not be nil")
	}

	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	attempter := NewAttempter(opts.Messenger, opts.Classify, opts.SendTimeout)
	attempter.now = opts.Now

	return &Engine{
		messages:    opts.Messages,
		attempter:   attempter,
		coordinator: NewCoordinator(opts.Messages, opts.MaxRetries, opts.Logger),
		auditor:     NewAuditor(opts.Logs, opts.Logger),
		notifier:    NewNotifier(opts.Messenger, opts.Prefs, opts.Logger),
		batchSize:   opts.BatchSize,
		concurrency: opts.Concurrency,
		now:         opts.Now,
		log:         opts.Logger,
	}, nil
}

// Tick runs one polling round: query due messages and process each
// independently with bounded fan-out. A failed due-query abandons the
// tick; it is never fatal to the process.
func (e *Engine) Tick(ctx context.Context) {
	due, err := e.messages.DuePending(ctx, e.now(), e.batchSize)
	if err != nil {
		e.log.Error("due message query failed, skipping tick", slog.Any("err", err))
		return
	}
	if len(due) == 0 {
		return
	}

	e.log.Info("processing due messages", slog.Int("count", len(due)))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for _, msg := range due {
		g.Go(func() error {
			e.Process(ctx, msg)
			return nil
		})
	}
	_ = g.Wait()
}

// Process runs one message through attempt, transition, audit and
// notification.
func (e *Engine) Process(ctx context.Context, msg model.ScheduledMessage) {
	// Re-read right before attempting: a cancellation issued after the
	// poll read must skip delivery rather than race the send.
	fresh, err := e.messages.GetByID(ctx, msg.ID)
	if err != nil {
		e.log.Warn("re-read before attempt failed",
			slog.String("message_id", msg.ID), slog.Any("err", err))
		return
	}
	if fresh.Status != model.StatusPending {
		e.log.Debug("message no longer pending, skipping",
			slog.String("message_id", fresh.ID),
			slog.String("status", string(fresh.Status)),
		)
		return
	}

	res := e.attempter.Attempt(ctx, fresh)

	outcome, terminal, err := e.coordinator.Apply(ctx, fresh, res)
	if err != nil {
		e.log.Error("status transition failed",
			slog.String("message_id", fresh.ID),
			slog.String("outcome", string(outcome)),
			slog.Any("err", err),
		)
	}

	e.auditor.Record(ctx, fresh, res, outcome)

	if terminal {
		e.notifier.NotifyOwner(ctx, fresh, outcome, res.Reason)
	}
}
