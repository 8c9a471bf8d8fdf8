// Package autobroadcast owns the single repeating timer that re-runs the
// broadcast pipeline.
package autobroadcast

import (
	"fmt"

	"trackcast/internal/host"
	logx "trackcast/pkg/logx"
)

// MinIntervalSeconds keeps autobroadcast from spamming chat.
const MinIntervalSeconds = 5

// DefaultIntervalSeconds applies when the document has no interval.
const DefaultIntervalSeconds = 60

// ClampInterval enforces MinIntervalSeconds.
func ClampInterval(seconds int) int {
	if seconds < MinIntervalSeconds {
		return MinIntervalSeconds
	}
	return seconds
}

type State int

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	default:
		return "stopped"
	}
}

// Config is the persisted autobroadcast block.
type Config struct {
	Enabled         bool
	IntervalSeconds int
}

// Scheduler keeps at most one live task. It is driven from the host main loop.
type Scheduler struct {
	tasks host.TaskScheduler
	job   func()
	log   logx.Logger

	handle   host.TaskID
	running  bool
	interval int
}

// New returns a stopped scheduler that runs job on every tick of the timer.
func New(tasks host.TaskScheduler, job func(), log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{tasks: tasks, job: job, log: log}
}

// Start (re)arms the timer for cfg. A live timer is always cancelled first.
// A disabled config or a non-positive interval leaves the scheduler stopped.
// Scheduling errors are returned and leave the scheduler stopped.
func (s *Scheduler) Start(cfg Config) error {
	s.Stop()
	if !cfg.Enabled || cfg.IntervalSeconds <= 0 {
		return nil
	}
	every := host.Seconds(cfg.IntervalSeconds)
	id, err := s.tasks.ScheduleRepeating(every, every, s.job)
	if err != nil {
		return fmt.Errorf("schedule autobroadcast: %w", err)
	}
	s.handle = id
	s.running = true
	s.interval = cfg.IntervalSeconds
	s.log.Info("autobroadcast enabled", logx.Int("interval_s", cfg.IntervalSeconds), logx.Uint64("task", uint64(id)))
	return nil
}

// Stop cancels the live timer, if any. Safe to call repeatedly.
func (s *Scheduler) Stop() {
	if !s.running {
		return
	}
	s.tasks.Cancel(s.handle)
	s.log.Debug("autobroadcast timer cancelled", logx.Uint64("task", uint64(s.handle)))
	s.handle = 0
	s.running = false
	s.interval = 0
}

func (s *Scheduler) State() State {
	if s.running {
		return Running
	}
	return Stopped
}

// Interval returns the active interval in seconds, or 0 when stopped.
func (s *Scheduler) Interval() int { return s.interval }
