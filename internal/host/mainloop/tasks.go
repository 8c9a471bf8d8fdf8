package mainloop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"trackcast/internal/host"
	logx "trackcast/pkg/logx"
)

// Tasks implements host.TaskScheduler on robfig/cron. Cron only provides the
// timing; every callback is posted to the Loop and re-checked there, so once
// Cancel has returned on the loop no further callback for that id runs.
type Tasks struct {
	loop *Loop
	log  logx.Logger
	c    *cron.Cron

	mu     sync.Mutex
	next   host.TaskID
	live   map[host.TaskID]cron.EntryID
	closed bool
}

var _ host.TaskScheduler = (*Tasks)(nil)

func NewTasks(loop *Loop, log logx.Logger) *Tasks {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Tasks{
		loop: loop,
		log:  log,
		c:    cron.New(cron.WithLogger(cronLogger{log: log}), cron.WithChain(cron.Recover(cronLogger{log: log}))),
		live: map[host.TaskID]cron.EntryID{},
	}
}

func (t *Tasks) Start() { t.c.Start() }

// Stop halts timing and forgets every task. Running cron jobs are awaited
// until ctx expires.
func (t *Tasks) Stop(ctx context.Context) {
	t.mu.Lock()
	t.closed = true
	t.live = map[host.TaskID]cron.EntryID{}
	t.mu.Unlock()
	select {
	case <-t.c.Stop().Done():
	case <-ctx.Done():
	}
}

func (t *Tasks) ScheduleRepeating(delay, period host.Ticks, fn func()) (host.TaskID, error) {
	if fn == nil {
		return 0, errors.New("task func required")
	}
	if period <= 0 {
		return 0, fmt.Errorf("period must be > 0 ticks, got %d", period)
	}
	if delay < 0 {
		delay = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, ErrClosed
	}
	t.next++
	id := t.next
	sched := &repeatSchedule{delay: delay.Duration(), period: period.Duration()}
	entry := t.c.Schedule(sched, cron.FuncJob(func() {
		t.loop.Post(func() {
			if t.isLive(id) {
				fn()
			}
		})
	}))
	t.live[id] = entry
	t.log.Debug("task scheduled", logx.Uint64("task", uint64(id)), logx.Duration("delay", sched.delay), logx.Duration("period", sched.period))
	return id, nil
}

func (t *Tasks) Cancel(id host.TaskID) {
	t.mu.Lock()
	entry, ok := t.live[id]
	delete(t.live, id)
	t.mu.Unlock()
	if ok {
		t.c.Remove(entry)
		t.log.Debug("task cancelled", logx.Uint64("task", uint64(id)))
	}
}

// Len reports live tasks.
func (t *Tasks) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.live)
}

func (t *Tasks) isLive(id host.TaskID) bool {
	t.mu.Lock()
	_, ok := t.live[id]
	t.mu.Unlock()
	return ok
}

// repeatSchedule fires once after delay, then every period. cron calls Next
// from its run goroutine only.
type repeatSchedule struct {
	delay  time.Duration
	period time.Duration
	armed  bool
}

func (s *repeatSchedule) Next(now time.Time) time.Time {
	if !s.armed {
		s.armed = true
		return now.Add(s.delay)
	}
	return now.Add(s.period)
}

// cronLogger routes robfig/cron diagnostics into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if !l.log.Enabled(logx.LevelTrace) {
		return
	}
	l.log.Trace("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
