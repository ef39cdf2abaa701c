// Package log wires the structured logging used across the transport,
// transaction, and dialog drivers onto [log/slog].
package log

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"log/slog"

	"github.com/golang-cz/devslog"
	console "github.com/phsym/console-slog"
	slogformatter "github.com/samber/slog-formatter"
)

var newHandler = slogformatter.NewFormatterHandler(
	slogformatter.ErrorFormatter("error"),
	slogformatter.FormatByType(func(ls net.Listener) slog.Value {
		return slog.GroupValue(
			slog.String("type", fmt.Sprintf("%T", ls)),
			slog.Any("local_addr", ls.Addr()),
		)
	}),
	slogformatter.FormatByType(func(c net.PacketConn) slog.Value {
		return slog.GroupValue(
			slog.String("type", fmt.Sprintf("%T", c)),
			slog.Any("local_addr", c.LocalAddr()),
		)
	}),
	slogformatter.FormatByType(func(c net.Conn) slog.Value {
		return slog.GroupValue(
			slog.String("type", fmt.Sprintf("%T", c)),
			slog.Any("local_addr", c.LocalAddr()),
			slog.Any("remote_addr", c.RemoteAddr()),
		)
	}),
)

// Default is the logger used when no logger was attached to a context or
// passed explicitly through options.
var Default = slog.New(newHandler(
	console.NewHandler(os.Stderr, &console.HandlerOptions{
		Level:      slog.LevelInfo,
		TimeFormat: time.RFC3339Nano,
	}),
))

// Dev is a verbose, human-friendly logger intended for local development.
var Dev = slog.New(newHandler(
	devslog.NewHandler(os.Stdout, &devslog.Options{
		HandlerOptions: &slog.HandlerOptions{AddSource: true, Level: slog.LevelDebug},
		SortKeys:       true,
		TimeFormat:     time.RFC3339Nano,
	}),
))

type noopHandler struct{}

func (noopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (noopHandler) Handle(context.Context, slog.Record) error { return nil }
func (h noopHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h noopHandler) WithGroup(string) slog.Handler           { return h }

// Noop discards everything; useful in tests that don't want log noise.
var Noop = slog.New(noopHandler{})

// Loggable is implemented by domain values (messages, addresses, keys) that
// know how to render themselves for structured logging.
type Loggable interface {
	LogValue() slog.Value
}

type ctxKey struct{}

// WithLogger returns a context carrying logger, retrievable with [FromContext].
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger attached to ctx, or [Default] if none was attached.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return Default
}

// FromValues returns the contextual logger with the given attributes appended,
// handy at the top of a handler to tag every subsequent log line.
func FromValues(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}

type calcValue struct{ fn func() any }

func (v calcValue) LogValue() slog.Value {
	switch cv := v.fn().(type) {
	case slog.Value:
		return cv
	default:
		return slog.AnyValue(cv)
	}
}

// CalcValue defers computing an attribute value until the record is actually
// emitted, so disabled log levels don't pay for it.
func CalcValue(fn func() any) slog.LogValuer { return calcValue{fn} }

type stringValue[T ~string | ~[]byte] struct{ v T }

func (v stringValue[T]) LogValue() slog.Value { return slog.StringValue(string(v.v)) }

// StringValue renders v (a string or byte-slice-like type) as a plain string attribute.
func StringValue[T ~string | ~[]byte](v T) slog.LogValuer { return stringValue[T]{v} }
