// Package eventbus is an in-memory fanout of domain events. Handlers that
// mutate tracker state never run on the bus; it only feeds observers such as
// the debug logger and the Telegram mirror.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by trackcast.
const (
	TrackAdded           = "track.added"
	TrackRemoved         = "track.removed"
	BroadcastSent        = "broadcast.sent"
	AutobroadcastChanged = "autobroadcast.changed"
	ConfigReloaded       = "config.reloaded"
	PlayerJoined         = "player.joined"
	PlayerLeft           = "player.left"
)

// Event is a lightweight signal. Data should be small and
// JSON-serializable.
//
// Publish is non-blocking; slow subscribers drop events.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
	// Dropped counts events lost to full subscriber buffers.
	Dropped() uint64
}

// New returns a bus that owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	seq     atomic.Uint64
	dropped atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Sends happen under the read lock; unsubscribe takes the write lock
	// before closing, so no send ever hits a closed channel.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, unsub
}

func (b *memBus) Dropped() uint64 { return b.dropped.Load() }
