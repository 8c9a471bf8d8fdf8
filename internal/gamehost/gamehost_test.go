package gamehost

import (
	"bufio"
	"context"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"trackcast/internal/command"
	"trackcast/internal/config"
	"trackcast/internal/host/mainloop"
	"trackcast/internal/tracker"
	logx "trackcast/pkg/logx"
)

type stack struct {
	loop   *mainloop.Loop
	server *Server
	disp   *command.Dispatcher
	ctx    context.Context
}

func newStack(t *testing.T, operators ...string) *stack {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	loop := mainloop.New(16, logx.Nop())
	go func() { _ = loop.Run(ctx) }()
	tasks := mainloop.NewTasks(loop, logx.Nop())

	cfgm := config.NewManager(filepath.Join(t.TempDir(), "config.json"))
	if _, _, err := cfgm.LoadOrInit(); err != nil {
		t.Fatal(err)
	}

	srv := New(Config{Operators: operators}, loop, nil, nil, logx.Nop())
	tr := tracker.New(tracker.Deps{Config: cfgm, Resolver: srv, Tasks: tasks, Sink: srv, Log: logx.Nop()})
	disp := command.New(tr, logx.Nop())
	srv.SetDispatcher(disp)
	if err := loop.Do(ctx, func() { _ = tr.Init() }); err != nil {
		t.Fatal(err)
	}
	return &stack{loop: loop, server: srv, disp: disp, ctx: ctx}
}

type client struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func (s *stack) connect(t *testing.T) *client {
	t.Helper()
	srvConn, cliConn := net.Pipe()
	go s.server.handleConn(s.ctx, srvConn)
	t.Cleanup(func() { _ = cliConn.Close() })
	return &client{t: t, conn: cliConn, r: bufio.NewReader(cliConn)}
}

func (c *client) send(line string) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		c.t.Fatalf("write %q: %v", line, err)
	}
}

// expect reads lines until one contains want.
func (c *client) expect(want string) string {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		line, err := c.r.ReadString('\n')
		if err != nil {
			c.t.Fatalf("waiting for %q: %v", want, err)
		}
		if strings.Contains(line, want) {
			return line
		}
	}
}

func (c *client) login(name string) {
	c.t.Helper()
	c.expect("Enter your name")
	c.send(name)
	c.expect("Welcome, " + name)
}

func TestLoginMoveAndBroadcast(t *testing.T) {
	s := newStack(t, "Admin")
	admin := s.connect(t)
	admin.login("Admin")
	alice := s.connect(t)
	alice.login("Alice")

	alice.send("move world 10.7 64 -19.2")
	alice.send("where")
	alice.expect("10\x1b[0m, 64, -20")

	admin.send("/track add alice")
	admin.expect("Added Alice to tracked players.")
	admin.send("/track broadcast")
	line := alice.expect("Alice")
	if !strings.Contains(line, "10") || !strings.Contains(line, "-20") || !strings.Contains(line, "\x1b[92m") {
		t.Fatalf("broadcast line %q", line)
	}
	admin.expect("Broadcasted tracked player locations.")
}

func TestNonOperatorDenied(t *testing.T) {
	s := newStack(t)
	bob := s.connect(t)
	bob.login("Bob")
	bob.send("/track list")
	bob.expect("You don't have permission.")
}

func TestDuplicateAndInvalidNames(t *testing.T) {
	s := newStack(t)
	first := s.connect(t)
	first.login("Steve")

	second := s.connect(t)
	second.expect("Enter your name")
	// net.Pipe is unbuffered, so every prompt is read before answering.
	second.send("x!")
	second.expect("Names are 3-16")
	second.expect("Enter your name")
	second.send("steve")
	second.expect("already online")
	second.expect("Enter your name")
	second.send("Alex")
	second.expect("Welcome, Alex")

	first.send("who")
	first.expect("Steve, Alex")
}

func TestQuitRemovesPlayer(t *testing.T) {
	s := newStack(t)
	c := s.connect(t)
	c.login("Herobrine")
	c.send("quit")
	c.expect("Bye.")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var online int
		if err := s.loop.Do(s.ctx, func() { online = len(s.server.Online()) }); err != nil {
			t.Fatal(err)
		}
		if online == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("player still online after quit")
}

func TestConsoleRunsTrackCommands(t *testing.T) {
	s := newStack(t)
	var out strings.Builder
	in := strings.NewReader("track list\nbogus\nwho\n")
	con := NewConsole(s.loop, s.disp, s.server, in, &out, logx.Nop())
	if err := con.Run(s.ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := out.String()
	for _, want := range []string{"No players tracked.", "Unknown command.", "Online: "} {
		if !strings.Contains(got, want) {
			t.Fatalf("console output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "§") {
		t.Fatalf("console output kept color codes: %q", got)
	}
}

func TestServeOverTCP(t *testing.T) {
	s := newStack(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("no loopback: %v", err)
	}
	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan error, 1)
	go func() { done <- s.server.Serve(ctx, ln) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	c := &client{t: t, conn: conn, r: bufio.NewReader(conn)}
	c.login("Tcp_User")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Serve did not stop")
	}
}
