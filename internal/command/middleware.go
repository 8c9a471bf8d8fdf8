package command

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	logx "trackcast/pkg/logx"
)

// Request is one parsed command invocation. Args excludes the "track" label.
type Request struct {
	Sender Sender
	Args   []string
	Log    logx.Logger
}

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

// Recover turns a handler panic into an error reply.
func Recover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic recovered",
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())),
					)
					req.Sender.Reply(msgInternalError)
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

// RequestLog logs every invocation with its outcome and duration.
func RequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			fields := []logx.Field{
				logx.String("sender", req.Sender.Name()),
				logx.String("source", req.Sender.Source()),
				logx.String("args", strings.Join(req.Args, " ")),
				logx.Duration("took", time.Since(start)),
			}
			if err != nil {
				log.Warn("command failed", append(fields, logx.Err(err))...)
				return err
			}
			log.Debug("command handled", fields...)
			return nil
		}
	}
}

// RequirePermission rejects senders without perm.
func RequirePermission(perm string) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if !req.Sender.HasPermission(perm) {
				req.Sender.Reply(msgNoPermission)
				return nil
			}
			return next(ctx, req)
		}
	}
}
