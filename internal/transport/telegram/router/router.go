// Package router turns Telegram messages into /track invocations for bot
// owners and mirrors broadcasts into a chat.
package router

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"trackcast/internal/broadcast"
	"trackcast/internal/command"
	"trackcast/internal/storage"
	kit "trackcast/internal/transport"
	logx "trackcast/pkg/logx"
)

const (
	requestTimeout = 15 * time.Second
	auditLimit     = 10
)

// Executor runs fn on the host main loop and waits for it.
type Executor interface {
	Do(ctx context.Context, fn func()) error
}

type Dispatcher interface {
	ExecuteLine(ctx context.Context, s command.Sender, line string) error
}

// AuditReader is the read side of the audit store.
type AuditReader interface {
	RecentAudit(ctx context.Context, limit int) ([]storage.AuditEntry, error)
}

type Router struct {
	sender kit.Sender
	exec   Executor
	disp   Dispatcher
	audit  AuditReader
	log    logx.Logger

	mu     sync.RWMutex
	owners map[int64]bool
}

// New returns a router. audit may be nil.
func New(sender kit.Sender, exec Executor, disp Dispatcher, audit AuditReader, owners []int64, log logx.Logger) *Router {
	r := &Router{sender: sender, exec: exec, disp: disp, audit: audit, log: log.With(logx.String("comp", "telegram.router"))}
	r.SetOwners(owners)
	return r
}

// SetOwners replaces the owner list (config hot reload).
func (r *Router) SetOwners(ids []int64) {
	m := make(map[int64]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	r.mu.Lock()
	r.owners = m
	r.mu.Unlock()
}

func (r *Router) isOwner(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.owners[id]
}

// Commands is the bot menu.
func Commands() []kit.BotCommand {
	return []kit.BotCommand{
		{Command: "track", Description: "Manage tracked players (owners)"},
		{Command: "audit", Description: "Recent tracking changes (owners)"},
		{Command: "whoami", Description: "Show your Telegram user id"},
		{Command: "help", Description: "Show help"},
	}
}

// Run handles messages until ctx is done or in is closed.
func (r *Router) Run(ctx context.Context, in <-chan kit.Message) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-in:
			if !ok {
				return nil
			}
			r.handle(ctx, m)
		}
	}
}

func (r *Router) handle(ctx context.Context, m kit.Message) {
	text := strings.TrimSpace(m.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	name := commandName(text)
	start := time.Now()
	var reply string
	switch name {
	case "track":
		reply = r.track(ctx, m, text)
	case "audit":
		reply = r.recentAudit(ctx, m)
	case "whoami":
		reply = fmt.Sprintf("Your user id is %d.", m.FromID)
	case "help", "start":
		reply = helpText(r.isOwner(m.FromID))
	default:
		return
	}

	fields := []logx.Field{
		logx.Int64("chat_id", m.ChatID),
		logx.Int64("from_id", m.FromID),
		logx.String("cmd", name),
		logx.Duration("dur", time.Since(start)),
	}
	if reply == "" {
		r.log.Debug("request ok (no reply)", fields...)
		return
	}
	to := kit.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}
	if _, err := r.sender.SendText(ctx, to, reply, nil); err != nil {
		r.log.Warn("request failed", append(fields, logx.Err(err))...)
		return
	}
	r.log.Debug("request ok", fields...)
}

// commandName extracts "track" from "/track@bot add x".
func commandName(text string) string {
	tok := strings.Fields(text)[0]
	tok = strings.TrimPrefix(tok, "/")
	if at := strings.IndexByte(tok, '@'); at >= 0 {
		tok = tok[:at]
	}
	return strings.ToLower(tok)
}

func (r *Router) track(ctx context.Context, m kit.Message, text string) string {
	s := &chatSender{user: m.FromUsername, id: m.FromID, owner: r.isOwner(m.FromID)}
	err := r.exec.Do(ctx, func() {
		if err := r.disp.ExecuteLine(ctx, s, text); err != nil {
			r.log.Debug("track command error", logx.Err(err))
		}
	})
	if err != nil {
		return "The server is shutting down."
	}
	return broadcast.StripColors(strings.Join(s.replies, "\n"))
}

func (r *Router) recentAudit(ctx context.Context, m kit.Message) string {
	if !r.isOwner(m.FromID) {
		return "You don't have permission."
	}
	if r.audit == nil {
		return "Audit log is disabled."
	}
	entries, err := r.audit.RecentAudit(ctx, auditLimit)
	if err != nil {
		r.log.Warn("audit read failed", logx.Err(err))
		return "Could not read the audit log."
	}
	if len(entries) == 0 {
		return "No recorded changes."
	}
	var b strings.Builder
	for _, e := range entries {
		status := "ok"
		if !e.OK {
			status = "failed: " + e.Error
		}
		fmt.Fprintf(&b, "%s %s/%s %s %s (%s)\n",
			e.At.UTC().Format("2006-01-02 15:04:05"), e.Source, e.Actor, e.Action, e.Target, status)
	}
	return strings.TrimRight(b.String(), "\n")
}

func helpText(owner bool) string {
	if !owner {
		return "This bot relays tracked player locations. Send /whoami and ask an operator to add your id to owner_user_ids."
	}
	return strings.Join([]string{
		"/track add <player>",
		"/track remove <player|uuid>",
		"/track list",
		"/track broadcast",
		"/track autobroadcast <on|off|interval> [seconds]",
		"/audit",
	}, "\n")
}

// chatSender collects replies for one Telegram request. It is used only on
// the main loop.
type chatSender struct {
	user    string
	id      int64
	owner   bool
	replies []string
}

var _ command.Sender = (*chatSender)(nil)

func (s *chatSender) Name() string {
	if s.user != "" {
		return "@" + s.user
	}
	return strconv.FormatInt(s.id, 10)
}

func (s *chatSender) Source() string { return "telegram" }

func (s *chatSender) HasPermission(perm string) bool {
	return perm == command.Permission && s.owner
}

func (s *chatSender) Reply(msg string) { s.replies = append(s.replies, msg) }
