package broadcast

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"trackcast/internal/host"
	logx "trackcast/pkg/logx"
)

// Sink delivers a rendered broadcast to its audience.
type Sink interface {
	Broadcast(ctx context.Context, text string) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, text string) error

func (f SinkFunc) Broadcast(ctx context.Context, text string) error { return f(ctx, text) }

// Fanout delivers to every sink, even when some fail.
type Fanout []Sink

func (f Fanout) Broadcast(ctx context.Context, text string) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Broadcast(ctx, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Lister exposes the tracked ids.
type Lister interface {
	List() []uuid.UUID
}

// Broadcaster is the full pipeline: tracked ids, resolver, templates, sink.
type Broadcaster struct {
	Tracked   Lister
	Resolver  host.Resolver
	Templates func() Templates
	Sink      Sink
	Log       logx.Logger
}

// Broadcast renders and sends. sent is false when nobody tracked is online.
func (b *Broadcaster) Broadcast(ctx context.Context) (sent bool, err error) {
	tpl := DefaultTemplates()
	if b.Templates != nil {
		tpl = b.Templates()
	}
	ids := b.Tracked.List()
	text, ok := Render(ids, b.Resolver, tpl)
	if !ok {
		b.Log.Debug("broadcast skipped; no tracked player online", logx.Int("tracked", len(ids)))
		return false, nil
	}
	if err := b.Sink.Broadcast(ctx, text); err != nil {
		return true, err
	}
	b.Log.Debug("broadcast sent", logx.Int("tracked", len(ids)), logx.Int("bytes", len(text)))
	return true, nil
}
