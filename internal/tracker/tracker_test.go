package tracker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"trackcast/internal/config"
	"trackcast/internal/host"
	"trackcast/internal/host/hosttest"
	"trackcast/internal/storage"
	logx "trackcast/pkg/logx"
)

var (
	aliceID = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	bobID   = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	console = Actor{Name: "console", Source: "console"}
)

type fixture struct {
	tr      *Tracker
	cfgm    *config.Manager
	players *hosttest.Players
	tasks   *hosttest.Tasks
	sink    *hosttest.Sink
	audit   storage.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfgm := config.NewManager(filepath.Join(dir, "config.json"))
	if _, _, err := cfgm.LoadOrInit(); err != nil {
		t.Fatalf("LoadOrInit: %v", err)
	}
	audit, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(dir, "trackcast")}, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = audit.Close() })

	f := &fixture{
		cfgm: cfgm,
		players: hosttest.NewPlayers(
			host.Player{ID: aliceID, Name: "Alice", World: "world", X: 10, Y: 64, Z: -20, Online: true},
			host.Player{ID: bobID, Name: "Bob", World: "world_nether", Online: false},
		),
		tasks: hosttest.NewTasks(),
		sink:  &hosttest.Sink{},
		audit: audit,
	}
	f.tr = New(Deps{
		Config:   cfgm,
		Resolver: f.players,
		Tasks:    f.tasks,
		Sink:     f.sink,
		Audit:    audit,
		Log:      logx.Nop(),
	})
	if err := f.tr.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return f
}

func TestTrackAddsOnlinePlayerOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, added, err := f.tr.Track(ctx, console, "alice")
	if err != nil || !added || p.ID != aliceID {
		t.Fatalf("first Track: p=%v added=%v err=%v", p, added, err)
	}
	_, added, err = f.tr.Track(ctx, console, "Alice")
	if err != nil || added {
		t.Fatalf("second Track: added=%v err=%v", added, err)
	}
	if got := f.cfgm.Get().TrackedPlayers; len(got) != 1 || got[0] != aliceID.String() {
		t.Fatalf("persisted=%v", got)
	}
}

func TestTrackRejectsOfflineAndUnknown(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"Bob", "Carol"} {
		if _, _, err := f.tr.Track(context.Background(), console, name); !errors.Is(err, ErrPlayerNotFound) {
			t.Fatalf("Track(%s) err=%v", name, err)
		}
	}
}

func TestUntrack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cfgm.Commit(&config.Config{TrackedPlayers: []string{aliceID.String(), bobID.String()}})
	f.tr.Apply(f.cfgm.Get())

	tests := []struct {
		name string
		arg  string
		err  error
	}{
		{"online name", "alice", nil},
		{"offline uuid", bobID.String(), nil},
		{"already removed", bobID.String(), ErrNotTracked},
		{"offline name", "Bob", ErrNotTracked},
		{"garbage", "not-a-uuid", ErrNotTracked},
	}
	for _, tt := range tests {
		err := f.tr.Untrack(ctx, console, tt.arg)
		if !errors.Is(err, tt.err) || (tt.err == nil && err != nil) {
			t.Fatalf("%s: err=%v want %v", tt.name, err, tt.err)
		}
	}
	if len(f.tr.List()) != 0 {
		t.Fatalf("list not empty: %v", f.tr.List())
	}
}

func TestListLabels(t *testing.T) {
	f := newFixture(t)
	f.cfgm.Commit(&config.Config{TrackedPlayers: []string{aliceID.String(), bobID.String()}})
	f.tr.Apply(f.cfgm.Get())

	var labels []string
	for _, e := range f.tr.List() {
		labels = append(labels, e.Label())
	}
	if got := strings.Join(labels, ", "); got != "Alice, "+bobID.String() {
		t.Fatalf("labels=%q", got)
	}
}

func TestBroadcastOnlyOnlineTracked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if sent, err := f.tr.Broadcast(ctx); sent || err != nil {
		t.Fatalf("empty broadcast: sent=%v err=%v", sent, err)
	}
	f.cfgm.Commit(&config.Config{TrackedPlayers: []string{aliceID.String(), bobID.String()}})
	f.cfgm.Get().Normalize()
	f.tr.Apply(f.cfgm.Get())

	sent, err := f.tr.Broadcast(ctx)
	if !sent || err != nil {
		t.Fatalf("broadcast: sent=%v err=%v", sent, err)
	}
	msgs := f.sink.Sent()
	want := "[Tracked]\n§a- Alice§r at §eworld§r: §b10§r, 64, -20"
	if len(msgs) != 1 || msgs[0] != want {
		t.Fatalf("msgs=%q want %q", msgs, want)
	}
}

func TestAutobroadcastLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, ok := f.tasks.Only(); ok {
		t.Fatalf("autobroadcast should start disabled")
	}
	if err := f.tr.SetAutobroadcast(ctx, console, true); err != nil {
		t.Fatalf("on: %v", err)
	}
	task, ok := f.tasks.Only()
	if !ok || task.Delay != 1200 || task.Period != 1200 {
		t.Fatalf("task=%+v ok=%v", task, ok)
	}
	if !f.cfgm.Get().Autobroadcast.Enabled {
		t.Fatalf("enabled not persisted")
	}

	got, err := f.tr.SetInterval(ctx, console, 3)
	if err != nil || got != 5 {
		t.Fatalf("interval: got=%d err=%v", got, err)
	}
	task, ok = f.tasks.Only()
	if !ok || task.Period != 100 {
		t.Fatalf("task after interval=%+v ok=%v", task, ok)
	}

	if err := f.tr.SetAutobroadcast(ctx, console, false); err != nil {
		t.Fatalf("off: %v", err)
	}
	if len(f.tasks.Live) != 0 {
		t.Fatalf("task still live after off")
	}
	if cfg := f.cfgm.Get(); cfg.Autobroadcast.Enabled || cfg.Autobroadcast.IntervalSeconds != 5 {
		t.Fatalf("persisted=%+v", cfg.Autobroadcast)
	}
}

func TestIntervalWhileDisabledDoesNotSchedule(t *testing.T) {
	f := newFixture(t)
	if _, err := f.tr.SetInterval(context.Background(), console, 30); err != nil {
		t.Fatalf("SetInterval: %v", err)
	}
	if len(f.tasks.Live) != 0 {
		t.Fatalf("disabled autobroadcast was scheduled")
	}
}

func TestAutobroadcastTickBroadcasts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, _, err := f.tr.Track(ctx, console, "Alice"); err != nil {
		t.Fatal(err)
	}
	if err := f.tr.SetAutobroadcast(ctx, console, true); err != nil {
		t.Fatal(err)
	}
	f.tasks.Fire()
	f.tasks.Fire()
	if got := len(f.sink.Sent()); got != 2 {
		t.Fatalf("broadcasts=%d want 2", got)
	}
}

func TestPersistFailureKeepsChange(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	// Parent "directory" is a regular file, so every save fails.
	cfgm := config.NewManager(filepath.Join(blocker, "config.json"))
	cfgm.Commit(config.Default())

	players := hosttest.NewPlayers(host.Player{ID: aliceID, Name: "Alice", Online: true})
	tr := New(Deps{Config: cfgm, Resolver: players, Tasks: hosttest.NewTasks(), Sink: &hosttest.Sink{}, Log: logx.Nop()})
	if err := tr.Init(); err != nil {
		t.Fatal(err)
	}

	_, added, err := tr.Track(context.Background(), console, "Alice")
	if !added || !errors.Is(err, ErrPersist) {
		t.Fatalf("added=%v err=%v", added, err)
	}
	if !tr.IsTracked(aliceID) {
		t.Fatalf("in-memory change lost")
	}
}

func TestApplyExternalEdit(t *testing.T) {
	f := newFixture(t)
	cfg := config.Default()
	cfg.TrackedPlayers = []string{bobID.String(), "junk"}
	cfg.Autobroadcast = config.AutobroadcastConfig{Enabled: true, IntervalSeconds: 10}

	f.tr.Apply(cfg)
	if !f.tr.IsTracked(bobID) || len(f.tr.List()) != 1 {
		t.Fatalf("tracked not reloaded: %v", f.tr.List())
	}
	task, ok := f.tasks.Only()
	if !ok || task.Period != 200 {
		t.Fatalf("task=%+v ok=%v", task, ok)
	}
	ab, state := f.tr.Autobroadcast()
	if !ab.Enabled || state.String() != "running" {
		t.Fatalf("ab=%+v state=%v", ab, state)
	}
}

func TestChangesAreAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, _, err := f.tr.Track(ctx, console, "Alice"); err != nil {
		t.Fatal(err)
	}
	if err := f.tr.SetAutobroadcast(ctx, console, true); err != nil {
		t.Fatal(err)
	}
	entries, err := f.audit.RecentAudit(ctx, 10)
	if err != nil {
		t.Fatalf("RecentAudit: %v", err)
	}
	if len(entries) != 2 || entries[0].Action != "track.add" || entries[1].Action != "autobroadcast.on" {
		t.Fatalf("entries=%+v", entries)
	}
	if !entries[0].OK || entries[0].Target != "Alice" || entries[0].Source != "console" {
		t.Fatalf("entry=%+v", entries[0])
	}
}

func TestCloseSavesAndStops(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, _, err := f.tr.Track(ctx, console, "Alice"); err != nil {
		t.Fatal(err)
	}
	if err := f.tr.SetAutobroadcast(ctx, console, true); err != nil {
		t.Fatal(err)
	}
	if err := f.tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(f.tasks.Live) != 0 {
		t.Fatalf("task survived Close")
	}
	cfg, err := f.cfgm.Parse()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.TrackedPlayers) != 1 {
		t.Fatalf("tracked not saved: %v", cfg.TrackedPlayers)
	}
}

func TestParseInterval(t *testing.T) {
	if n, err := ParseInterval(" 30 "); err != nil || n != 30 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	if _, err := ParseInterval("soon"); !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("err=%v", err)
	}
}
