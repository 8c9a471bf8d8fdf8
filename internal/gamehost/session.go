package gamehost

import (
	"net"
	"sync/atomic"

	"trackcast/internal/command"
	"trackcast/internal/host"
)

// session is one connected player. Fields are owned by the main loop; the
// connection writer only ranges over out.
type session struct {
	player   host.Player
	remote   string
	operator bool
	// quit is read by the connection reader between lines.
	quit atomic.Bool

	out    chan string
	closed bool
}

var _ command.Sender = (*session)(nil)

func newSession(name string, remote net.Addr) *session {
	addr := ""
	if remote != nil {
		addr = remote.String()
	}
	return &session{
		player: host.Player{ID: OfflineID(name), Name: name, Online: true},
		remote: addr,
		out:    make(chan string, outputBuffer),
	}
}

func (s *session) send(msg string) bool {
	if s.closed {
		return false
	}
	select {
	case s.out <- msg:
		return true
	default:
		return false
	}
}

func (s *session) closeOut() {
	if !s.closed {
		s.closed = true
		close(s.out)
	}
}

func (s *session) Name() string   { return s.player.Name }
func (s *session) Source() string { return "game" }

func (s *session) HasPermission(perm string) bool {
	return perm == command.Permission && s.operator
}

func (s *session) Reply(msg string) { s.send(ToANSI(msg) + "\r\n") }
