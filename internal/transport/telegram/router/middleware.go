package router

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"memewrangler/internal/storage"
	logx "memewrangler/pkg/logx"
)

// slowRequest is the duration above which a successful command logs at info.
const slowRequest = 750 * time.Millisecond

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

// Chain wraps h so that m[0] runs outermost.
func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if d <= 0 {
				return next(ctx, req)
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

// requestLogger prefers the per-request logger, which carries req_id.
func requestLogger(fallback logx.Logger, req *Request) logx.Logger {
	if req != nil && !req.Logger.IsZero() {
		return req.Logger
	}
	return fallback
}

// MWPanicRecover turns a handler panic into an error.
func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				requestLogger(log, req).Error("command panicked",
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())),
				)
				err = fmt.Errorf("handler panic: %v", r)
			}()
			return next(ctx, req)
		}
	}
}

func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			took := time.Since(start)

			logger := requestLogger(log, req).With(
				logx.String("cmd", req.Command),
				logx.Int64("from_id", req.FromID),
				logx.Duration("took", took),
			)
			switch {
			case err != nil:
				logger.Warn("command failed", logx.Err(err))
			case took >= slowRequest:
				logger.Info("command slow")
			default:
				logger.Debug("command ok")
			}
			return err
		}
	}
}

// AuditSink persists one row per handled command.
type AuditSink interface {
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
}

// MWAudit records every command outcome. Audit failures are logged and
// never change the handler result.
func MWAudit(sink AuditSink, log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if sink == nil {
			return next
		}
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)

			e := storage.AuditEntry{
				At:      start.UTC(),
				ActorID: req.FromID,
				ChatID:  req.Chat.ChatID,
				Command: req.Command,
				Target:  truncate(req.ArgLine, 200),
				OK:      err == nil,
				TookMS:  time.Since(start).Milliseconds(),
			}
			if req.Message != nil {
				e.ActorUsername = req.Message.FromUsername
			}
			if err != nil {
				e.Error = truncate(err.Error(), 500)
			}
			actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
			defer cancel()
			if aerr := sink.AppendAudit(actx, e); aerr != nil {
				log.Warn("audit write failed", logx.String("cmd", req.Command), logx.Err(aerr))
			}
			return err
		}
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
