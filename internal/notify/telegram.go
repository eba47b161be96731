// Package notify delivers rendered artifacts to a Telegram chat.
//
// The retry policy here is part of the delivery contract: a fixed number of
// attempts with a fixed delay, after which the event is surfaced as failed so
// the pipeline can release its claim.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"quakebot/pkg/logx"
)

// ErrRetriesExhausted marks a delivery that failed every attempt.
var ErrRetriesExhausted = errors.New("notify: retries exhausted")

const (
	defaultAttempts   = 5
	defaultRetryDelay = 2 * time.Second
)

// Config configures the Telegram notifier.
type Config struct {
	Token  string
	ChatID int64
	// Attempts and RetryDelay override the default 5 × 2s policy (tests).
	Attempts   int
	RetryDelay time.Duration
	// RatePerSec bounds outbound sends; 0 disables limiting.
	RatePerSec int
}

// Telegram sends photos with captions to one fixed chat target.
type Telegram struct {
	cfg     Config
	bot     *tele.Bot
	log     logx.Logger
	limiter *rate.Limiter

	// send is swapped out in tests; production uses the telebot call.
	send func(ctx context.Context, path, caption string) error
}

func New(cfg Config, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat id is empty")
	}
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, fmt.Errorf("telegram init: %w", err)
	}

	t := &Telegram{cfg: applyDefaults(cfg), bot: b, log: log}
	if cfg.RatePerSec > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	t.send = t.sendPhoto
	return t, nil
}

// SetLogger swaps the logger after construction. The notifier is built
// before the full logging service because the service logs through it.
func (t *Telegram) SetLogger(log logx.Logger) { t.log = log }

func applyDefaults(cfg Config) Config {
	if cfg.Attempts <= 0 {
		cfg.Attempts = defaultAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	return cfg
}

// SendPhoto delivers the artifact at path with the given HTML caption,
// retrying transient failures up to the configured attempt budget.
func (t *Telegram) SendPhoto(ctx context.Context, path, caption string) error {
	var lastErr error
	for attempt := 1; attempt <= t.cfg.Attempts; attempt++ {
		if t.limiter != nil {
			if err := t.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		err := t.send(ctx, path, caption)
		if err == nil {
			return nil
		}
		lastErr = err
		t.log.Warn("telegram send failed",
			logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", t.cfg.Attempts))

		if attempt == t.cfg.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.cfg.RetryDelay):
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, t.cfg.Attempts, lastErr)
}

func (t *Telegram) sendPhoto(ctx context.Context, path, caption string) error {
	photo := &tele.Photo{File: tele.FromDisk(path), Caption: caption}
	_, err := t.bot.Send(&tele.Chat{ID: t.cfg.ChatID}, photo, &tele.SendOptions{
		ParseMode: tele.ModeHTML,
	})
	return err
}

// SendText sends a plain message to the chat target. It backs the logx
// Telegram sink and does not retry; log delivery is best-effort.
func (t *Telegram) SendText(ctx context.Context, text string) error {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	_, err := t.bot.Send(&tele.Chat{ID: t.cfg.ChatID}, text, &tele.SendOptions{
		DisableWebPagePreview: true,
	})
	return err
}
