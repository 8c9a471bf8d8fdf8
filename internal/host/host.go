// Package host declares the collaborators trackcast consumes from the game
// host runtime: player resolution and repeating task scheduling.
package host

import (
	"time"

	"github.com/google/uuid"
)

// TicksPerSecond is the host's scheduling rate. One tick is 50ms.
const TicksPerSecond = 20

// TickDuration is the wall-clock length of a single tick.
const TickDuration = time.Second / TicksPerSecond

// Ticks is a duration measured in host ticks.
type Ticks int64

// Seconds converts whole seconds into ticks.
func Seconds(n int) Ticks { return Ticks(n) * TicksPerSecond }

// Duration converts ticks into wall-clock time.
func (t Ticks) Duration() time.Duration { return time.Duration(t) * TickDuration }

// Player is a point-in-time view of a player as known by the host.
// Coordinates are block coordinates.
type Player struct {
	ID     uuid.UUID
	Name   string
	World  string
	X      int
	Y      int
	Z      int
	Online bool
}

// Resolver looks players up. Lookups are in-memory on the host and cheap.
type Resolver interface {
	// ByID returns the player and true when the host knows the id.
	ByID(id uuid.UUID) (Player, bool)
	// ByName finds an ONLINE player by name (case-insensitive).
	ByName(name string) (Player, bool)
	// Online lists connected players.
	Online() []Player
}

// TaskID identifies a repeating task registered with a TaskScheduler.
type TaskID uint64

// TaskScheduler runs callbacks on the host main thread.
type TaskScheduler interface {
	// ScheduleRepeating runs fn after delay and then every period.
	ScheduleRepeating(delay, period Ticks, fn func()) (TaskID, error)
	// Cancel stops a task. Unknown ids are ignored.
	Cancel(id TaskID)
}
