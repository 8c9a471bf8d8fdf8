// Package hosttest provides in-memory host collaborators for tests.
package hosttest

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"trackcast/internal/host"
)

// Players is a map-backed host.Resolver in insertion order.
type Players struct {
	order []uuid.UUID
	byID  map[uuid.UUID]host.Player
}

func NewPlayers(ps ...host.Player) *Players {
	r := &Players{byID: map[uuid.UUID]host.Player{}}
	for _, p := range ps {
		r.Put(p)
	}
	return r
}

// Put inserts or replaces a player.
func (r *Players) Put(p host.Player) {
	if _, ok := r.byID[p.ID]; !ok {
		r.order = append(r.order, p.ID)
	}
	r.byID[p.ID] = p
}

func (r *Players) ByID(id uuid.UUID) (host.Player, bool) {
	p, ok := r.byID[id]
	return p, ok
}

func (r *Players) ByName(name string) (host.Player, bool) {
	for _, id := range r.order {
		if p := r.byID[id]; p.Online && strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return host.Player{}, false
}

func (r *Players) Online() []host.Player {
	var out []host.Player
	for _, id := range r.order {
		if p := r.byID[id]; p.Online {
			out = append(out, p)
		}
	}
	return out
}

// Task is one scheduled repeating task.
type Task struct {
	Delay, Period host.Ticks
	Fn            func()
}

// Tasks is a manual host.TaskScheduler; Fire runs every live task once.
type Tasks struct {
	Err  error
	next host.TaskID
	Live map[host.TaskID]Task
}

func NewTasks() *Tasks { return &Tasks{Live: map[host.TaskID]Task{}} }

func (f *Tasks) ScheduleRepeating(delay, period host.Ticks, fn func()) (host.TaskID, error) {
	if f.Err != nil {
		return 0, f.Err
	}
	f.next++
	f.Live[f.next] = Task{Delay: delay, Period: period, Fn: fn}
	return f.next, nil
}

func (f *Tasks) Cancel(id host.TaskID) { delete(f.Live, id) }

func (f *Tasks) Fire() {
	for _, t := range f.Live {
		t.Fn()
	}
}

// Only returns the single live task, or false when there are zero or many.
func (f *Tasks) Only() (Task, bool) {
	if len(f.Live) != 1 {
		return Task{}, false
	}
	for _, t := range f.Live {
		return t, true
	}
	return Task{}, false
}

// Sink records every broadcast.
type Sink struct {
	mu   sync.Mutex
	Msgs []string
	Err  error
}

func (s *Sink) Broadcast(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Msgs = append(s.Msgs, text)
	return s.Err
}

func (s *Sink) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Msgs...)
}
