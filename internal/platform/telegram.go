package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"schedbot/internal/model"
)

// Target is a resolved Telegram destination.
type Target struct {
	ChatID  int64
	TopicID int
}

type Config struct {
	Token       string
	SendTimeout time.Duration
	RatePerSec  int
	// Offline skips the initial getMe call; used by tests.
	Offline bool
}

// Telegram talks to the Bot API for delivery and owner notifications.
// Every outbound send passes through a shared rate limiter; each API
// call is bounded by the HTTP client timeout.
type Telegram struct {
	bot     *tele.Bot
	limiter *rate.Limiter
	log     *slog.Logger
}

func NewTelegram(cfg Config, log *slog.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" && !cfg.Offline {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 25
	}

	bot, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Offline: cfg.Offline,
		Client:  &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}

	return &Telegram{
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     log,
	}, nil
}

var errInvalidTarget = errors.New("invalid target id")

// Resolve looks up the destination chat for a message. A missing chat
// or an unparsable id is a resolution failure, which the engine treats
// as non-retryable.
func (t *Telegram) Resolve(ctx context.Context, msg model.ScheduledMessage) (Target, error) {
	if err := ctx.Err(); err != nil {
		return Target{}, err
	}

	id, err := strconv.ParseInt(msg.TargetID, 10, 64)
	if err != nil {
		return Target{}, fmt.Errorf("%w: %q", errInvalidTarget, msg.TargetID)
	}

	chat, err := t.bot.ChatByID(id)
	if err != nil {
		return Target{}, err
	}

	target := Target{ChatID: chat.ID}
	if msg.TargetKind == model.TargetThread && msg.TopicID != nil {
		target.TopicID = *msg.TopicID
	}
	return target, nil
}

// Send delivers text to a resolved target.
func (t *Telegram) Send(ctx context.Context, to Target, text string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}

	opts := &tele.SendOptions{
		ThreadID:              to.TopicID,
		DisableWebPagePreview: true,
	}
	_, err := t.bot.Send(&tele.Chat{ID: to.ChatID}, text, opts)
	return err
}

// SendDirect delivers text to a user by id, used for owner
// notifications.
func (t *Telegram) SendDirect(ctx context.Context, userID string, text string) error {
	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q", errInvalidTarget, userID)
	}
	return t.Send(ctx, Target{ChatID: id}, text)
}
