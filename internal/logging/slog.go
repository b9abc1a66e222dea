package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelSecurity sits above slog.LevelError.
const LevelSecurity = slog.Level(12)

type SlogLogger struct {
	l *slog.Logger
}

func NewSlogLogger(l *slog.Logger) *SlogLogger {
	return &SlogLogger{l: l}
}

// FileOptions configures rotation for file output.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// NewOutput returns stdout when no path is set, otherwise a size-rotated
// log file.
func NewOutput(o FileOptions) io.Writer {
	if o.Path == "" {
		return os.Stdout
	}
	return &lumberjack.Logger{
		Filename:   o.Path,
		MaxSize:    o.MaxSizeMB,
		MaxBackups: o.MaxBackups,
		MaxAge:     o.MaxAgeDays,
		Compress:   true,
	}
}

// NewJSONLogger builds a JSON slog logger writing to w. The SECURITY level
// is rendered by name instead of "ERROR+4".
func NewJSONLogger(w io.Writer) *SlogLogger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelSecurity {
					a.Value = slog.StringValue("SECURITY")
				}
			}
			return a
		},
	})
	return NewSlogLogger(slog.New(h))
}

func (s *SlogLogger) Debug(ctx context.Context, msg string, args ...any) {
	s.l.DebugContext(ctx, msg, args...)
}

func (s *SlogLogger) Info(ctx context.Context, msg string, args ...any) {
	s.l.InfoContext(ctx, msg, args...)
}

func (s *SlogLogger) Warn(ctx context.Context, msg string, args ...any) {
	s.l.WarnContext(ctx, msg, args...)
}

func (s *SlogLogger) Error(ctx context.Context, msg string, args ...any) {
	s.l.ErrorContext(ctx, msg, args...)
}

func (s *SlogLogger) Security(ctx context.Context, msg string, args ...any) {
	s.l.Log(ctx, LevelSecurity, msg, args...)
}

func (s *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{l: s.l.With(args...)}
}

// Nop discards everything. Useful for tests and optional collaborators.
type Nop struct{}

func (Nop) Debug(context.Context, string, ...any)    {}
func (Nop) Info(context.Context, string, ...any)     {}
func (Nop) Warn(context.Context, string, ...any)     {}
func (Nop) Error(context.Context, string, ...any)    {}
func (Nop) Security(context.Context, string, ...any) {}
func (n Nop) With(...any) Logger                     { return n }
