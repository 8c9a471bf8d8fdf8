// Package gamehost is a small line-protocol game host: players connect over
// TCP, pick a name, move around worlds and (operators) run /track. Its
// player table is the tracker's host.Resolver and its sessions are a
// broadcast sink.
//
// Everything that touches the player table runs on the main loop; network
// goroutines only read lines and hand them over with Executor.Do.
package gamehost

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"trackcast/internal/command"
	"trackcast/internal/eventbus"
	"trackcast/internal/host"
	logx "trackcast/pkg/logx"
)

const (
	outputBuffer       = 64
	nameAttempts       = 3
	loginTimeout       = 60 * time.Second
	acceptBackoffStart = 5 * time.Millisecond
	acceptBackoffMax   = time.Second
)

// SpawnY is the height new players start at.
const SpawnY = 64

// Executor runs fn on the host main loop and waits for it.
type Executor interface {
	Do(ctx context.Context, fn func()) error
}

// Dispatcher runs a full "/track ..." line for a sender.
type Dispatcher interface {
	ExecuteLine(ctx context.Context, s command.Sender, line string) error
}

type Config struct {
	Listen     string
	Operators  []string
	SpawnWorld string
}

type Server struct {
	exec Executor
	disp Dispatcher
	bus  eventbus.Bus
	log  logx.Logger

	// loop-owned
	sessions  map[uuid.UUID]*session
	order     []uuid.UUID
	operators map[string]bool
	spawn     string

	connMu sync.Mutex
	conns  map[net.Conn]struct{}
	wg     sync.WaitGroup
}

var _ host.Resolver = (*Server)(nil)

func New(cfg Config, exec Executor, disp Dispatcher, bus eventbus.Bus, log logx.Logger) *Server {
	s := &Server{
		exec:     exec,
		disp:     disp,
		bus:      bus,
		log:      log.With(logx.String("comp", "gamehost")),
		sessions: map[uuid.UUID]*session{},
		conns:    map[net.Conn]struct{}{},
		spawn:    cfg.SpawnWorld,
	}
	if s.spawn == "" {
		s.spawn = "world"
	}
	s.SetOperators(cfg.Operators)
	return s
}

// SetDispatcher installs the command dispatcher. Call before Serve.
func (s *Server) SetDispatcher(d Dispatcher) { s.disp = d }

// SetOperators replaces the operator list. Must run on the main loop.
func (s *Server) SetOperators(names []string) {
	ops := make(map[string]bool, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			ops[strings.ToLower(n)] = true
		}
	}
	s.operators = ops
	for _, sess := range s.sessions {
		sess.operator = ops[strings.ToLower(sess.player.Name)]
	}
}

// ListenAndServe listens on addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("gamehost listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then closes every
// session and waits for their goroutines.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info("gamehost listening", logx.String("addr", ln.Addr().String()))
	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
		s.closeConns()
	})
	defer stop()

	backoff := acceptBackoffStart
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			if isTemporaryAcceptError(err) {
				s.log.Warn("temporary accept error", logx.Err(err), logx.Duration("backoff", backoff))
				time.Sleep(backoff)
				backoff = min(backoff*2, acceptBackoffMax)
				continue
			}
			s.closeConns()
			s.wg.Wait()
			return err
		}
		backoff = acceptBackoffStart
		s.track(conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *Server) track(c net.Conn) {
	s.connMu.Lock()
	s.conns[c] = struct{}{}
	s.connMu.Unlock()
}

func (s *Server) untrack(c net.Conn) {
	s.connMu.Lock()
	delete(s.conns, c)
	s.connMu.Unlock()
	_ = c.Close()
}

func (s *Server) closeConns() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	for c := range s.conns {
		_ = c.Close()
	}
}

func isTemporaryAcceptError(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	r := bufio.NewReader(conn)
	write := func(msg string) { _, _ = conn.Write([]byte(ToANSI(msg))) }

	_ = conn.SetReadDeadline(time.Now().Add(loginTimeout))
	sess, err := s.login(ctx, conn, r, write)
	if err != nil {
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for out := range sess.out {
			if _, err := conn.Write([]byte(out)); err != nil {
				// keep draining so the loop never blocks on a dead client
				continue
			}
		}
	}()

	for !sess.quit.Load() {
		line, err := r.ReadString('\n')
		if err != nil {
			break
		}
		line = sanitizeLine(line)
		if line == "" {
			continue
		}
		if err := s.exec.Do(ctx, func() { s.handleLine(ctx, sess, line) }); err != nil {
			break
		}
	}

	// Leave may fail when the loop is already gone; the session is then
	// discarded with the process.
	if err := s.exec.Do(context.WithoutCancel(ctx), func() { s.leave(sess) }); err != nil {
		sess.closeOut()
	}
	<-done
}

func (s *Server) login(ctx context.Context, conn net.Conn, r *bufio.Reader, write func(string)) (*session, error) {
	for attempt := 0; attempt < nameAttempts; attempt++ {
		write("§eEnter your name:\n")
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		name := sanitizeLine(line)
		if !ValidName(name) {
			write("§cNames are 3-16 letters, digits or underscores.\n")
			continue
		}
		sess := newSession(name, conn.RemoteAddr())
		var joinErr error
		if err := s.exec.Do(ctx, func() { joinErr = s.join(sess) }); err != nil {
			return nil, err
		}
		if joinErr != nil {
			write("§cThat name is already online.\n")
			continue
		}
		return sess, nil
	}
	write("§cToo many attempts.\n")
	return nil, errors.New("login failed")
}

var errNameTaken = errors.New("name already online")

func (s *Server) join(sess *session) error {
	if _, taken := s.ByName(sess.player.Name); taken {
		return errNameTaken
	}
	sess.player.World = s.spawn
	sess.player.Y = SpawnY
	sess.operator = s.operators[strings.ToLower(sess.player.Name)]
	s.sessions[sess.player.ID] = sess
	s.order = append(s.order, sess.player.ID)

	s.log.Info("player joined",
		logx.String("name", sess.player.Name),
		logx.String("id", sess.player.ID.String()),
		logx.String("remote", sess.remote),
		logx.Bool("operator", sess.operator),
	)
	s.publish(eventbus.PlayerJoined, sess.player.Name)
	sess.Reply(fmt.Sprintf("§aWelcome, %s! You are in §e%s§a at 0, %d, 0.", sess.player.Name, s.spawn, SpawnY))
	sess.Reply("§7Commands: move <world> <x> <y> <z>, where, who, quit" + opHint(sess.operator))
	return nil
}

func opHint(op bool) string {
	if op {
		return ", /track"
	}
	return ""
}

func (s *Server) leave(sess *session) {
	if cur, ok := s.sessions[sess.player.ID]; !ok || cur != sess {
		sess.closeOut()
		return
	}
	delete(s.sessions, sess.player.ID)
	for i, id := range s.order {
		if id == sess.player.ID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	sess.closeOut()
	s.log.Info("player left", logx.String("name", sess.player.Name))
	s.publish(eventbus.PlayerLeft, sess.player.Name)
}

func (s *Server) handleLine(ctx context.Context, sess *session, line string) {
	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case "quit", "/quit":
		sess.Reply("§7Bye.")
		sess.quit.Store(true)
	case "who", "/who":
		sess.Reply("§bOnline: §f" + strings.Join(s.names(), ", "))
	case "where", "/where":
		p := sess.player
		sess.Reply(fmt.Sprintf("§e%s§r: §b%d§r, %d, %d", p.World, p.X, p.Y, p.Z))
	case "move", "/move":
		s.move(sess, fields[1:])
	default:
		if !command.IsTrackLine(line) {
			sess.Reply("§cUnknown command.")
			return
		}
		if err := s.disp.ExecuteLine(ctx, sess, line); err != nil && !errors.Is(err, command.ErrUnknownCommand) {
			s.log.Debug("command error", logx.String("name", sess.player.Name), logx.Err(err))
		}
	}
}

func (s *Server) move(sess *session, args []string) {
	if len(args) != 4 {
		sess.Reply("§cUsage: move <world> <x> <y> <z>")
		return
	}
	var xyz [3]int
	for i, a := range args[1:] {
		f, err := strconv.ParseFloat(a, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > 3e7 {
			sess.Reply("§cCoordinates must be numbers.")
			return
		}
		xyz[i] = int(math.Floor(f))
	}
	sess.player.World = args[0]
	sess.player.X, sess.player.Y, sess.player.Z = xyz[0], xyz[1], xyz[2]
	s.log.Trace("player moved", logx.String("name", sess.player.Name), logx.String("world", args[0]))
}

func (s *Server) names() []string {
	out := make([]string, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.sessions[id].player.Name)
	}
	return out
}

// ByID implements host.Resolver. Unknown ids are reported offline.
func (s *Server) ByID(id uuid.UUID) (host.Player, bool) {
	sess, ok := s.sessions[id]
	if !ok {
		return host.Player{}, false
	}
	return sess.player, true
}

// ByName looks up an online player case-insensitively.
func (s *Server) ByName(name string) (host.Player, bool) {
	for _, id := range s.order {
		if p := s.sessions[id].player; strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return host.Player{}, false
}

func (s *Server) Online() []host.Player {
	out := make([]host.Player, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.sessions[id].player)
	}
	return out
}

// Broadcast implements broadcast.Sink for every connected session.
func (s *Server) Broadcast(_ context.Context, text string) error {
	dropped := 0
	for _, id := range s.order {
		if !s.sessions[id].send(ToANSI(text) + "\r\n") {
			dropped++
		}
	}
	if dropped > 0 {
		return fmt.Errorf("broadcast dropped for %d slow sessions", dropped)
	}
	return nil
}

// Kick tells every session why it is about to be disconnected and marks it
// to stop after its current line. Connections are closed when Serve's
// context ends.
func (s *Server) Kick(reason string) {
	for _, id := range s.order {
		sess := s.sessions[id]
		sess.Reply("§c" + reason)
		sess.quit.Store(true)
	}
}

func (s *Server) publish(typ string, data any) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: typ, Data: data})
	}
}
