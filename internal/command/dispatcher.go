// Package command implements the /track command surface shared by the
// console, in-game operators and Telegram owners.
package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"trackcast/internal/host"
	"trackcast/internal/tracker"
	logx "trackcast/pkg/logx"
)

// Tracker is the state the dispatcher drives. *tracker.Tracker satisfies it.
type Tracker interface {
	Track(ctx context.Context, by tracker.Actor, name string) (host.Player, bool, error)
	Untrack(ctx context.Context, by tracker.Actor, arg string) error
	List() []tracker.Entry
	Broadcast(ctx context.Context) (bool, error)
	SetAutobroadcast(ctx context.Context, by tracker.Actor, enabled bool) error
	SetInterval(ctx context.Context, by tracker.Actor, seconds int) (int, error)
	OnlineNames() []string
}

var _ Tracker = (*tracker.Tracker)(nil)

// ErrUnknownCommand is returned by ExecuteLine for lines that are not /track.
var ErrUnknownCommand = errors.New("unknown command")

var subcommands = []string{"add", "remove", "list", "broadcast", "autobroadcast"}

// Dispatcher routes /track subcommands. Like the tracker it must be called
// from the host main loop.
type Dispatcher struct {
	tr      Tracker
	log     logx.Logger
	handler HandlerFunc
}

func New(tr Tracker, log logx.Logger) *Dispatcher {
	d := &Dispatcher{tr: tr, log: log.With(logx.String("comp", "command"))}
	d.handler = Chain(d.route,
		Recover(d.log),
		RequestLog(d.log),
		RequirePermission(Permission),
	)
	return d
}

// Execute runs one invocation; args excludes the "track" label.
func (d *Dispatcher) Execute(ctx context.Context, s Sender, args []string) error {
	return d.handler(ctx, &Request{Sender: s, Args: args, Log: d.log})
}

// ExecuteLine tokenizes a full command line such as "/track add Alice".
func (d *Dispatcher) ExecuteLine(ctx context.Context, s Sender, line string) error {
	toks := Tokenize(line)
	if len(toks) == 0 || !isLabel(toks[0]) {
		return ErrUnknownCommand
	}
	return d.Execute(ctx, s, toks[1:])
}

func (d *Dispatcher) route(ctx context.Context, req *Request) error {
	if len(req.Args) == 0 {
		d.help(req.Sender)
		return nil
	}
	switch strings.ToLower(req.Args[0]) {
	case "add":
		return d.add(ctx, req)
	case "remove":
		return d.remove(ctx, req)
	case "list":
		d.list(req.Sender)
		return nil
	case "broadcast":
		_, err := d.tr.Broadcast(ctx)
		req.Sender.Reply(msgBroadcasted)
		return err
	case "autobroadcast":
		return d.autobroadcast(ctx, req)
	default:
		d.help(req.Sender)
		return nil
	}
}

func (d *Dispatcher) help(s Sender) {
	for _, l := range helpLines {
		s.Reply(l)
	}
}

func (d *Dispatcher) add(ctx context.Context, req *Request) error {
	if len(req.Args) < 2 {
		req.Sender.Reply(usageAdd)
		return nil
	}
	p, added, err := d.tr.Track(ctx, actor(req.Sender), req.Args[1])
	switch {
	case errors.Is(err, tracker.ErrPlayerNotFound):
		req.Sender.Reply(msgNotFound)
		return nil
	case !added && err == nil:
		req.Sender.Reply(msgAlready)
		return nil
	}
	req.Sender.Reply(fmt.Sprintf("§aAdded %s to tracked players.", p.Name))
	return warnUnsaved(req.Sender, err)
}

func (d *Dispatcher) remove(ctx context.Context, req *Request) error {
	if len(req.Args) < 2 {
		req.Sender.Reply(usageRemove)
		return nil
	}
	err := d.tr.Untrack(ctx, actor(req.Sender), req.Args[1])
	if errors.Is(err, tracker.ErrNotTracked) {
		req.Sender.Reply(msgNotTracked)
		return nil
	}
	req.Sender.Reply(msgRemoved)
	return warnUnsaved(req.Sender, err)
}

func (d *Dispatcher) list(s Sender) {
	entries := d.tr.List()
	if len(entries) == 0 {
		s.Reply(msgNoneTracked)
		return
	}
	labels := make([]string, 0, len(entries))
	for _, e := range entries {
		labels = append(labels, e.Label())
	}
	s.Reply(msgTrackedPrefix + strings.Join(labels, ", "))
}

func (d *Dispatcher) autobroadcast(ctx context.Context, req *Request) error {
	if len(req.Args) < 2 {
		req.Sender.Reply(usageAuto)
		return nil
	}
	by := actor(req.Sender)
	mode := req.Args[1]
	switch {
	case strings.EqualFold(mode, "on"):
		err := d.tr.SetAutobroadcast(ctx, by, true)
		if scheduleFailed(req.Sender, err) {
			return err
		}
		req.Sender.Reply(msgAutoOn)
		return warnUnsaved(req.Sender, err)
	case strings.EqualFold(mode, "off"):
		err := d.tr.SetAutobroadcast(ctx, by, false)
		req.Sender.Reply(msgAutoOff)
		return warnUnsaved(req.Sender, err)
	case strings.EqualFold(mode, "interval") && len(req.Args) >= 3:
		n, err := tracker.ParseInterval(req.Args[2])
		if err != nil {
			req.Sender.Reply(msgInvalidIntv)
			return nil
		}
		applied, err := d.tr.SetInterval(ctx, by, n)
		if scheduleFailed(req.Sender, err) {
			return err
		}
		req.Sender.Reply(fmt.Sprintf("§aAutobroadcast interval set to %d seconds.", applied))
		return warnUnsaved(req.Sender, err)
	default:
		req.Sender.Reply(usageAuto)
		return nil
	}
}

// Complete returns tab completions for the partial argument list.
func (d *Dispatcher) Complete(args []string) []string {
	switch len(args) {
	case 1:
		return filterPrefix(subcommands, args[0])
	case 2:
		switch strings.ToLower(args[0]) {
		case "add", "remove":
			return filterPrefix(d.tr.OnlineNames(), args[1])
		case "autobroadcast":
			return filterPrefix([]string{"on", "off", "interval"}, args[1])
		}
	}
	return nil
}

func filterPrefix(in []string, prefix string) []string {
	out := []string{}
	for _, s := range in {
		if hasPrefixFold(s, prefix) {
			out = append(out, s)
		}
	}
	return out
}

func actor(s Sender) tracker.Actor {
	return tracker.Actor{Name: s.Name(), Source: s.Source()}
}

// warnUnsaved reports a persistence failure inline. The command itself
// succeeded, so the error is not propagated.
func warnUnsaved(s Sender, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, tracker.ErrPersist) {
		s.Reply(msgNotSaved + err.Error())
		return nil
	}
	return err
}

// scheduleFailed replies when the host refused the timer.
func scheduleFailed(s Sender, err error) bool {
	if err == nil || errors.Is(err, tracker.ErrPersist) {
		return false
	}
	s.Reply(msgScheduleFail + err.Error())
	return true
}
