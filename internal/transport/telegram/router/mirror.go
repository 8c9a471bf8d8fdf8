package router

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"trackcast/internal/broadcast"
	kit "trackcast/internal/transport"
	logx "trackcast/pkg/logx"
)

const mirrorQueue = 16

// Mirror is a broadcast.Sink that copies broadcasts into one chat. Sends
// happen on its own goroutine so the main loop never waits on Telegram;
// messages over the rate limit or queue size are dropped and counted.
type Mirror struct {
	sender kit.Sender
	to     kit.ChatTarget
	lim    *rate.Limiter
	queue  chan string
	log    logx.Logger

	dropped atomic.Uint64
}

var _ broadcast.Sink = (*Mirror)(nil)

func NewMirror(sender kit.Sender, to kit.ChatTarget, ratePerSec int, log logx.Logger) *Mirror {
	if ratePerSec <= 0 {
		ratePerSec = 1
	}
	return &Mirror{
		sender: sender,
		to:     to,
		lim:    rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		queue:  make(chan string, mirrorQueue),
		log:    log.With(logx.String("comp", "telegram.mirror")),
	}
}

func (m *Mirror) Broadcast(_ context.Context, text string) error {
	if !m.lim.Allow() {
		m.dropped.Add(1)
		return nil
	}
	select {
	case m.queue <- broadcast.StripColors(text):
	default:
		m.dropped.Add(1)
	}
	return nil
}

// Dropped counts broadcasts not mirrored.
func (m *Mirror) Dropped() uint64 { return m.dropped.Load() }

// Run sends queued broadcasts until ctx is done.
func (m *Mirror) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			if n := m.dropped.Load(); n > 0 {
				m.log.Info("mirror stopped", logx.Uint64("dropped", n))
			}
			return nil
		case text := <-m.queue:
			sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			_, err := m.sender.SendText(sctx, m.to, text, &kit.SendOptions{DisablePreview: true})
			cancel()
			if err != nil {
				m.log.Warn("mirror send failed", logx.Err(err))
			}
		}
	}
}

// ParseChatTarget parses "chat_id" or "chat_id:thread_id".
func ParseChatTarget(raw string) (kit.ChatTarget, error) {
	raw = strings.TrimSpace(raw)
	chatPart, threadPart, hasThread := strings.Cut(raw, ":")
	chatID, err := strconv.ParseInt(strings.TrimSpace(chatPart), 10, 64)
	if err != nil {
		return kit.ChatTarget{}, fmt.Errorf("invalid chat id %q: %w", raw, err)
	}
	to := kit.ChatTarget{ChatID: chatID}
	if hasThread {
		tid, err := strconv.Atoi(strings.TrimSpace(threadPart))
		if err != nil {
			return kit.ChatTarget{}, fmt.Errorf("invalid thread id %q: %w", raw, err)
		}
		to.ThreadID = tid
	}
	return to, nil
}
