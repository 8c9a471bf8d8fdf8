package gamehost

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"trackcast/internal/broadcast"
	"trackcast/internal/command"
	logx "trackcast/pkg/logx"
)

// Console is the operator console on stdin. It holds every permission and
// also receives broadcasts, the way a server console echoes chat.
type Console struct {
	exec   Executor
	disp   Dispatcher
	server *Server
	in     io.Reader
	log    logx.Logger

	mu  sync.Mutex
	out io.Writer
}

var _ command.Sender = (*Console)(nil)

func NewConsole(exec Executor, disp Dispatcher, server *Server, in io.Reader, out io.Writer, log logx.Logger) *Console {
	return &Console{exec: exec, disp: disp, server: server, in: in, out: out, log: log.With(logx.String("comp", "console"))}
}

// SetDispatcher installs the command dispatcher. Call before Run.
func (c *Console) SetDispatcher(d Dispatcher) { c.disp = d }

func (c *Console) Name() string                   { return "console" }
func (c *Console) Source() string                 { return "console" }
func (c *Console) HasPermission(perm string) bool { return true }

func (c *Console) Reply(msg string) { c.println(broadcast.StripColors(msg)) }

// Broadcast implements broadcast.Sink.
func (c *Console) Broadcast(_ context.Context, text string) error {
	return c.println(broadcast.StripColors(text))
}

func (c *Console) println(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := io.WriteString(c.out, s+"\n")
	return err
}

// Run reads commands until ctx is done or input ends.
func (c *Console) Run(ctx context.Context) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			if err != nil {
				return err
			}
			c.log.Debug("console input closed")
			return nil
		case line := <-lines:
			line = sanitizeLine(line)
			if line == "" {
				continue
			}
			if err := c.exec.Do(ctx, func() { c.handle(ctx, line) }); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
		}
	}
}

func (c *Console) handle(ctx context.Context, line string) {
	switch strings.ToLower(strings.TrimPrefix(strings.Fields(line)[0], "/")) {
	case "who", "list":
		if c.server == nil {
			c.Reply("No game host.")
			return
		}
		c.Reply("Online: " + strings.Join(c.server.names(), ", "))
	case "help":
		c.Reply("Commands: track ..., who, help")
	default:
		if err := c.disp.ExecuteLine(ctx, c, line); errors.Is(err, command.ErrUnknownCommand) {
			c.Reply("Unknown command. Type \"help\" for help.")
		}
	}
}
