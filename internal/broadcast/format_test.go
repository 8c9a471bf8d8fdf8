package broadcast

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"trackcast/internal/host"
)

type fakeResolver map[uuid.UUID]host.Player

func (f fakeResolver) ByID(id uuid.UUID) (host.Player, bool) {
	p, ok := f[id]
	return p, ok
}

func (f fakeResolver) ByName(name string) (host.Player, bool) {
	for _, p := range f {
		if p.Online && strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return host.Player{}, false
}

func (f fakeResolver) Online() []host.Player {
	var out []host.Player
	for _, p := range f {
		if p.Online {
			out = append(out, p)
		}
	}
	return out
}

type ids []uuid.UUID

func (l ids) List() []uuid.UUID { return l }

func TestDropY(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "middle comma", in: "%name% at %x%, %y%, %z%", want: "%name% at %x%, %z%"},
		{name: "middle space", in: "%x% %y% %z%", want: "%x% %z%"},
		{name: "leading", in: "%y%, %z%", want: "%z%"},
		{name: "trailing", in: "%x%, %y%", want: "%x%"},
		{name: "alone", in: "%y%", want: ""},
		{name: "no separators", in: "(%y%)", want: "()"},
		{name: "colored", in: "§b%x%§r, %y%, %z%", want: "§b%x%§r, %z%"},
		{name: "absent", in: "%x% %z%", want: "%x% %z%"},
		{name: "repeated", in: "%y%, %x%, %y%", want: "%x%"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := dropY(tt.in); got != tt.want {
				t.Fatalf("dropY(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRenderHideY(t *testing.T) {
	t.Parallel()
	alice := host.Player{ID: uuid.New(), Name: "Alice", World: "overworld", X: 10, Y: 64, Z: -20, Online: true}
	r := fakeResolver{alice.ID: alice}

	tpl := Templates{Outer: "%players%", PlayerLine: "%name% at %x%, %y%, %z%", ShowY: false, AsList: true}
	got, ok := Render([]uuid.UUID{alice.ID}, r, tpl)
	if !ok {
		t.Fatal("expected a broadcast")
	}
	if got != "Alice at 10, -20" {
		t.Fatalf("Render = %q, want %q", got, "Alice at 10, -20")
	}

	tpl.ShowY = true
	got, _ = Render([]uuid.UUID{alice.ID}, r, tpl)
	if got != "Alice at 10, 64, -20" {
		t.Fatalf("Render with y = %q", got)
	}
}

func TestRenderNobodyOnline(t *testing.T) {
	t.Parallel()
	off := host.Player{ID: uuid.New(), Name: "Bob", Online: false}
	r := fakeResolver{off.ID: off}
	if text, ok := Render([]uuid.UUID{off.ID, uuid.New()}, r, DefaultTemplates()); ok || text != "" {
		t.Fatalf("Render = (%q, %v), want no broadcast", text, ok)
	}
	if _, ok := Render(nil, r, DefaultTemplates()); ok {
		t.Fatal("empty tracked set must not broadcast")
	}
}

func TestRenderJoin(t *testing.T) {
	t.Parallel()
	a := host.Player{ID: uuid.New(), Name: "A", World: "w", X: 1, Y: 2, Z: 3, Online: true}
	b := host.Player{ID: uuid.New(), Name: "B", World: "w", X: 4, Y: 5, Z: 6, Online: true}
	r := fakeResolver{a.ID: a, b.ID: b}
	tpl := Templates{Outer: "[T] %players%", PlayerLine: "%name%", ShowY: true}

	got, _ := Render([]uuid.UUID{a.ID, b.ID}, r, tpl)
	if got != "[T] A | B" {
		t.Fatalf("inline join = %q", got)
	}
	tpl.AsList = true
	got, _ = Render([]uuid.UUID{a.ID, b.ID}, r, tpl)
	if got != "[T] A\nB" {
		t.Fatalf("list join = %q", got)
	}
}

func TestRenderDoesNotReexpandValues(t *testing.T) {
	t.Parallel()
	p := host.Player{ID: uuid.New(), Name: "%world%", World: "nether", X: 1, Y: 2, Z: 3, Online: true}
	r := fakeResolver{p.ID: p}
	got, _ := Render([]uuid.UUID{p.ID}, r, Templates{Outer: "%players%", PlayerLine: "%name%@%world%", ShowY: true})
	if got != "%world%@nether" {
		t.Fatalf("Render = %q", got)
	}
}

func TestBroadcasterEndToEnd(t *testing.T) {
	t.Parallel()
	online := host.Player{ID: uuid.New(), Name: "Alice", World: "overworld", X: 10, Y: 64, Z: -20, Online: true}
	offline := uuid.New()
	r := fakeResolver{online.ID: online}

	var sent []string
	b := &Broadcaster{
		Tracked:  ids{online.ID, offline},
		Resolver: r,
		Templates: func() Templates {
			return Templates{Outer: "[Tracked]\n%players%", PlayerLine: "%name% in %world%: %x%, %y%, %z%", ShowY: true, AsList: true}
		},
		Sink: SinkFunc(func(_ context.Context, text string) error {
			sent = append(sent, text)
			return nil
		}),
	}
	ok, err := b.Broadcast(context.Background())
	if err != nil || !ok {
		t.Fatalf("Broadcast = (%v, %v)", ok, err)
	}
	if len(sent) != 1 || sent[0] != "[Tracked]\nAlice in overworld: 10, 64, -20" {
		t.Fatalf("sent = %q", sent)
	}
}

func TestBroadcasterSkipsSinkWhenEmpty(t *testing.T) {
	t.Parallel()
	calls := 0
	b := &Broadcaster{
		Tracked:  ids{uuid.New()},
		Resolver: fakeResolver{},
		Sink: SinkFunc(func(context.Context, string) error {
			calls++
			return nil
		}),
	}
	ok, err := b.Broadcast(context.Background())
	if ok || err != nil || calls != 0 {
		t.Fatalf("Broadcast = (%v, %v), sink calls = %d; want no call", ok, err, calls)
	}
}

func TestFanoutJoinsErrors(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	delivered := 0
	f := Fanout{
		SinkFunc(func(context.Context, string) error { return boom }),
		nil,
		SinkFunc(func(context.Context, string) error { delivered++; return nil }),
	}
	err := f.Broadcast(context.Background(), "x")
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if delivered != 1 {
		t.Fatal("a failing sink must not block the others")
	}
}

func TestStripColors(t *testing.T) {
	t.Parallel()
	in := "§a- Alice§r at §eoverworld§r: §b10§r, 64, -20"
	if got := StripColors(in); got != "- Alice at overworld: 10, 64, -20" {
		t.Fatalf("StripColors = %q", got)
	}
	if got := StripColors("plain"); got != "plain" {
		t.Fatalf("StripColors(plain) = %q", got)
	}
}
