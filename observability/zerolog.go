package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

// LogConfig configures the zerolog-backed Logger.
type LogConfig struct {
	Level  string
	Format string // json or console
	Output io.Writer
}

type zerologLogger struct {
	zl zerolog.Logger
}

// NewZerologLogger returns a Logger writing through zerolog.
func NewZerologLogger(cfg LogConfig) Logger {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	var zl zerolog.Logger
	if strings.EqualFold(cfg.Format, "console") {
		zl = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	} else {
		zl = zerolog.New(out)
	}
	zl = zl.Level(parseLevel(cfg.Level)).With().Timestamp().Logger()
	return &zerologLogger{zl: zl}
}

// FromZerolog wraps an existing zerolog.Logger.
func FromZerolog(zl zerolog.Logger) Logger { return &zerologLogger{zl: zl} }

func parseLevel(s string) zerolog.Level {
	if s == "" {
		return zerolog.InfoLevel
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

func (l *zerologLogger) Debug(msg string, fields ...Field) { emit(l.zl.Debug(), msg, fields) }
func (l *zerologLogger) Info(msg string, fields ...Field)  { emit(l.zl.Info(), msg, fields) }
func (l *zerologLogger) Warn(msg string, fields ...Field)  { emit(l.zl.Warn(), msg, fields) }
func (l *zerologLogger) Error(msg string, fields ...Field) { emit(l.zl.Error(), msg, fields) }

func (l *zerologLogger) With(fields ...Field) Logger {
	ctx := l.zl.With()
	for _, f := range fields {
		switch v := f.Value().(type) {
		case string:
			ctx = ctx.Str(f.Key(), v)
		case int:
			ctx = ctx.Int(f.Key(), v)
		case int64:
			ctx = ctx.Int64(f.Key(), v)
		case error:
			ctx = ctx.AnErr(f.Key(), v)
		default:
			ctx = ctx.Interface(f.Key(), v)
		}
	}
	return &zerologLogger{zl: ctx.Logger()}
}

func emit(evt *zerolog.Event, msg string, fields []Field) {
	if evt == nil {
		return
	}
	for _, f := range fields {
		switch v := f.Value().(type) {
		case string:
			evt = evt.Str(f.Key(), v)
		case int:
			evt = evt.Int(f.Key(), v)
		case int64:
			evt = evt.Int64(f.Key(), v)
		case float64:
			evt = evt.Float64(f.Key(), v)
		case bool:
			evt = evt.Bool(f.Key(), v)
		case time.Duration:
			evt = evt.Dur(f.Key(), v)
		case error:
			evt = evt.Stack().AnErr(f.Key(), v)
		default:
			evt = evt.Interface(f.Key(), v)
		}
	}
	evt.Msg(msg)
}
