// Package tracker owns all tracked-player state: the identity store, the
// autobroadcast scheduler and the broadcast pipeline. A Tracker is not safe
// for concurrent use; every method must run on the host main loop.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"trackcast/internal/autobroadcast"
	"trackcast/internal/broadcast"
	"trackcast/internal/config"
	"trackcast/internal/eventbus"
	"trackcast/internal/host"
	"trackcast/internal/storage"
	"trackcast/internal/tracking"
	logx "trackcast/pkg/logx"
)

var (
	ErrPlayerNotFound  = errors.New("player not found")
	ErrNotTracked      = errors.New("player is not tracked")
	ErrInvalidInterval = errors.New("invalid interval")
	// ErrPersist marks a change that was applied in memory but not saved.
	ErrPersist = errors.New("persist failed")
)

// Actor identifies who asked for a change, for the audit log.
type Actor struct {
	Name   string
	Source string // console, game, telegram
}

// Deps are the collaborators a Tracker needs. Audit and Bus may be nil.
type Deps struct {
	Config   *config.Manager
	Resolver host.Resolver
	Tasks    host.TaskScheduler
	Sink     broadcast.Sink
	Audit    storage.Store
	Bus      eventbus.Bus
	Log      logx.Logger
}

type Tracker struct {
	cfgm     *config.Manager
	resolver host.Resolver
	audit    storage.Store
	bus      eventbus.Bus
	log      logx.Logger

	store *tracking.Store
	sched *autobroadcast.Scheduler
	bcast *broadcast.Broadcaster

	// auto is the live setting; the document copy may lag after a failed save.
	auto autobroadcast.Config
}

func New(d Deps) *Tracker {
	log := d.Log.With(logx.String("comp", "tracker"))
	t := &Tracker{
		cfgm:     d.Config,
		resolver: d.Resolver,
		audit:    d.Audit,
		bus:      d.Bus,
		log:      log,
	}
	t.store = tracking.NewStore(t.persistTracked)
	t.bcast = &broadcast.Broadcaster{
		Tracked:   t.store,
		Resolver:  d.Resolver,
		Templates: t.templates,
		Sink:      d.Sink,
		Log:       log,
	}
	t.sched = autobroadcast.New(d.Tasks, t.autobroadcastTick, log.With(logx.String("comp", "autobroadcast")))
	return t
}

// Init loads the tracked set from the committed document and starts
// autobroadcast when enabled.
func (t *Tracker) Init() error {
	cfg := t.cfgm.Get()
	if cfg == nil {
		cfg = config.Default()
	}
	if skipped := t.store.Load(cfg.TrackedPlayers); skipped > 0 {
		t.log.Warn("skipped invalid tracked entries", logx.Int("skipped", skipped))
	}
	t.auto = autoConfig(cfg)
	if err := t.sched.Start(t.auto); err != nil {
		return err
	}
	t.log.Info("tracker ready",
		logx.Int("tracked", t.store.Len()),
		logx.String("autobroadcast", t.sched.State().String()),
		logx.Int("interval_seconds", t.auto.IntervalSeconds),
	)
	return nil
}

// Track adds the online player with the given name.
func (t *Tracker) Track(ctx context.Context, by Actor, name string) (host.Player, bool, error) {
	p, ok := t.resolver.ByName(name)
	if !ok || !p.Online {
		return host.Player{}, false, ErrPlayerNotFound
	}
	added, err := t.store.Add(p.ID)
	if added {
		t.publish(eventbus.TrackAdded, p.ID.String())
		t.record(ctx, by, "track.add", p.Name, err)
	}
	return p, added, persistErr(err)
}

// Untrack removes by online player name first, then by UUID literal.
func (t *Tracker) Untrack(ctx context.Context, by Actor, arg string) error {
	id, ok := t.resolveID(arg)
	if !ok || !t.store.Contains(id) {
		return ErrNotTracked
	}
	_, err := t.store.Remove(id)
	t.publish(eventbus.TrackRemoved, id.String())
	t.record(ctx, by, "track.remove", id.String(), err)
	return persistErr(err)
}

func (t *Tracker) resolveID(arg string) (uuid.UUID, bool) {
	if p, ok := t.resolver.ByName(arg); ok && p.Online {
		return p.ID, true
	}
	id, err := uuid.Parse(strings.TrimSpace(arg))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Entry is one tracked player as shown by List.
type Entry struct {
	ID     uuid.UUID
	Name   string // empty when offline
	Online bool
}

// Label is the name when online, else the UUID string.
func (e Entry) Label() string {
	if e.Online && e.Name != "" {
		return e.Name
	}
	return e.ID.String()
}

// List returns the tracked players in insertion order.
func (t *Tracker) List() []Entry {
	ids := t.store.List()
	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		e := Entry{ID: id}
		if p, ok := t.resolver.ByID(id); ok && p.Online {
			e.Name, e.Online = p.Name, true
		}
		out = append(out, e)
	}
	return out
}

// IsTracked reports whether id is in the tracked set.
func (t *Tracker) IsTracked(id uuid.UUID) bool { return t.store.Contains(id) }

// OnlineNames lists online player names for completion.
func (t *Tracker) OnlineNames() []string {
	online := t.resolver.Online()
	out := make([]string, 0, len(online))
	for _, p := range online {
		out = append(out, p.Name)
	}
	return out
}

// Broadcast runs the pipeline once. Sink failures are logged and returned.
func (t *Tracker) Broadcast(ctx context.Context) (bool, error) {
	sent, err := t.bcast.Broadcast(ctx)
	if err != nil {
		t.log.Warn("broadcast delivery failed", logx.Err(err))
	}
	if sent {
		t.publish(eventbus.BroadcastSent, t.store.Len())
	}
	return sent, err
}

func (t *Tracker) autobroadcastTick() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _ = t.Broadcast(ctx)
}

// SetAutobroadcast turns the repeating broadcast on or off and persists it.
func (t *Tracker) SetAutobroadcast(ctx context.Context, by Actor, enabled bool) error {
	t.auto.Enabled = enabled
	saveErr := t.persist()

	var err error
	if enabled {
		err = t.sched.Start(t.auto)
	} else {
		t.sched.Stop()
	}
	action := "autobroadcast.off"
	if enabled {
		action = "autobroadcast.on"
	}
	t.record(ctx, by, action, "", errors.Join(saveErr, err))
	t.publish(eventbus.AutobroadcastChanged, t.auto)
	if err != nil {
		return err
	}
	return persistErr(saveErr)
}

// SetInterval clamps, persists and applies a new interval. The scheduler
// is restarted only when autobroadcast is enabled.
func (t *Tracker) SetInterval(ctx context.Context, by Actor, seconds int) (int, error) {
	seconds = autobroadcast.ClampInterval(seconds)
	t.auto.IntervalSeconds = seconds
	saveErr := t.persist()
	err := t.sched.Start(t.auto)
	t.record(ctx, by, "autobroadcast.interval", strconv.Itoa(seconds), errors.Join(saveErr, err))
	t.publish(eventbus.AutobroadcastChanged, t.auto)
	if err != nil {
		return seconds, err
	}
	return seconds, persistErr(saveErr)
}

// ParseInterval parses a seconds argument.
func ParseInterval(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, ErrInvalidInterval
	}
	return n, nil
}

// Autobroadcast reports the live autobroadcast setting and scheduler state.
func (t *Tracker) Autobroadcast() (autobroadcast.Config, autobroadcast.State) {
	return t.auto, t.sched.State()
}

// Apply brings the tracker in line with an externally edited document.
func (t *Tracker) Apply(cfg *config.Config) {
	if cfg == nil {
		return
	}
	if !equalStrings(cfg.TrackedPlayers, t.store.Strings()) {
		skipped := t.store.Load(cfg.TrackedPlayers)
		t.log.Info("tracked players reloaded", logx.Int("tracked", t.store.Len()), logx.Int("skipped", skipped))
	}
	if next := autoConfig(cfg); next != t.auto {
		t.auto = next
		if err := t.sched.Start(t.auto); err != nil {
			t.log.Warn("autobroadcast restart failed", logx.Err(err))
		}
		t.publish(eventbus.AutobroadcastChanged, t.auto)
	}
}

// Close stops autobroadcast and saves the tracked set.
func (t *Tracker) Close() error {
	t.sched.Stop()
	if err := t.store.Save(); err != nil {
		t.log.Warn("final save failed", logx.Err(err))
		return err
	}
	return nil
}

func (t *Tracker) templates() broadcast.Templates {
	cfg := t.cfgm.Get()
	if cfg == nil {
		return broadcast.DefaultTemplates()
	}
	return broadcast.Templates{
		Outer:      cfg.BroadcastFormat,
		PlayerLine: cfg.PlayerListFormat,
		ShowY:      cfg.ShowY(),
		AsList:     cfg.AsList(),
	}
}

// persistTracked is the store's Persister.
func (t *Tracker) persistTracked(ids []string) error {
	_, err := t.cfgm.Update(func(c *config.Config) {
		c.TrackedPlayers = ids
		c.Autobroadcast = config.AutobroadcastConfig(t.auto)
	})
	return err
}

func (t *Tracker) persist() error {
	if err := t.persistTracked(t.store.Strings()); err != nil {
		return fmt.Errorf("save autobroadcast: %w", err)
	}
	return nil
}

func (t *Tracker) record(ctx context.Context, by Actor, action, target string, err error) {
	if err != nil {
		t.log.Warn("change not fully applied", logx.String("action", action), logx.String("actor", by.Name), logx.Err(err))
	} else {
		t.log.Info("change applied", logx.String("action", action), logx.String("actor", by.Name), logx.String("target", target))
	}
	if t.audit == nil {
		return
	}
	e := storage.AuditEntry{At: time.Now(), Actor: by.Name, Source: by.Source, Action: action, Target: target, OK: err == nil}
	if err != nil {
		e.Error = err.Error()
	}
	if aerr := t.audit.AppendAudit(ctx, e); aerr != nil && !errors.Is(aerr, storage.ErrDisabled) {
		t.log.Warn("audit append failed", logx.Err(aerr))
	}
}

func (t *Tracker) publish(typ string, data any) {
	if t.bus == nil {
		return
	}
	t.bus.Publish(eventbus.Event{Type: typ, Data: data})
}

func autoConfig(cfg *config.Config) autobroadcast.Config {
	return autobroadcast.Config(cfg.Autobroadcast)
}

func persistErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPersist, err)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
