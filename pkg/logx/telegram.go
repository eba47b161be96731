package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// TextSender delivers a plain text line to the operations chat.
type TextSender interface {
	SendText(ctx context.Context, text string) error
}

// telegramSink is a zerolog sink that forwards WARN+ lines to Telegram
// through a bounded queue, so logging never blocks on the network.
type telegramSink struct {
	sender TextSender

	mu       sync.Mutex
	minLevel zerolog.Level
	limiter  *rate.Limiter

	queue  chan string
	cancel context.CancelFunc
	once   sync.Once
	wg     sync.WaitGroup
}

func newTelegramSink(sender TextSender) *telegramSink {
	return &telegramSink{
		sender:   sender,
		minLevel: zerolog.WarnLevel,
		limiter:  rate.NewLimiter(1, 1),
		queue:    make(chan string, 64),
	}
}

func (t *telegramSink) configure(cfg TelegramConfig) {
	t.mu.Lock()
	t.minLevel = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	t.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	t.mu.Unlock()

	t.once.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		t.cancel = cancel
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg := <-t.queue:
					_ = t.sender.SendText(ctx, msg)
				}
			}
		}()
	})
}

func (t *telegramSink) close() {
	if t.cancel != nil {
		t.cancel()
		t.wg.Wait()
	}
}

func (t *telegramSink) Write(p []byte) (int, error) {
	return t.WriteLevel(zerolog.InfoLevel, p)
}

func (t *telegramSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	t.mu.Lock()
	min := t.minLevel
	lim := t.limiter
	t.mu.Unlock()

	if level < min || !lim.Allow() {
		return len(p), nil
	}
	msg := formatLine(p)
	if msg == "" {
		return len(p), nil
	}
	// Never block core logging; drop when the queue is full.
	select {
	case t.queue <- msg:
	default:
	}
	return len(p), nil
}

// formatLine turns a zerolog JSON line into a compact chat message.
func formatLine(p []byte) string {
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		return truncate(strings.TrimSpace(string(p)), 3500)
	}

	lvl, _ := m["level"].(string)
	msg, _ := m["message"].(string)

	var b strings.Builder
	if lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	b.WriteString(msg)
	for k, v := range m {
		switch k {
		case "time", "level", "message", "caller":
			continue
		}
		b.WriteString("\n- " + k + "=" + truncate(fmt.Sprint(v), 600))
	}
	return truncate(b.String(), 3500)
}

func truncate(s string, maxN int) string {
	if len(s) <= maxN {
		return s
	}
	if maxN < 10 {
		return s[:maxN]
	}
	return s[:maxN-3] + "..."
}
