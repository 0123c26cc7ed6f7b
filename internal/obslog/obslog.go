// Package obslog provides the zerolog-backed rfb.Logger used by the demo
// server (cmd/server). The core rfb package never imports zerolog directly; it only
// depends on the small Logger interface obslog satisfies.
package obslog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/nulvnc/rfbsession/pkg/rfb"
)

// Logger wraps a zerolog.Logger to satisfy rfb.Logger.
type Logger struct {
	zl zerolog.Logger
}

// New builds a Logger that writes pretty console output to w when
// pretty is true, or JSON lines otherwise. level sets the minimum
// level that actually gets written.
func New(w io.Writer, service string, level zerolog.Level, pretty bool) *Logger {
	if w == nil {
		w = os.Stderr
	}
	var out io.Writer = w
	if pretty {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	zl := zerolog.New(out).With().Str("service", service).Timestamp().Logger().Level(level)
	return &Logger{zl: zl}
}

// With returns a derived Logger that attaches component to every entry.
func (l *Logger) With(component string) *Logger {
	return &Logger{zl: l.zl.With().Str("component", component).Logger()}
}

func (l *Logger) Debug(msg string, fields map[string]any) {
	l.zl.Debug().Fields(fields).Msg(msg)
}

func (l *Logger) Info(msg string, fields map[string]any) {
	l.zl.Info().Fields(fields).Msg(msg)
}

func (l *Logger) Error(msg string, err error, fields map[string]any) {
	ev := l.zl.Error()
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Fields(fields).Msg(msg)
}

var _ rfb.Logger = (*Logger)(nil)
