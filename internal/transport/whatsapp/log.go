package whatsapp

import (
	"context"
	"fmt"
	"log/slog"

	waLog "go.mau.fi/whatsmeow/util/log"
)

// slogLogger routes whatsmeow's printf-style logs into slog.
type slogLogger struct {
	base   *slog.Logger
	module string
}

func newLogger(base *slog.Logger, module string) waLog.Logger {
	return &slogLogger{base: base, module: module}
}

func (s *slogLogger) log(level slog.Level, msg string, args []any) {
	s.base.Log(context.Background(), level, fmt.Sprintf(msg, args...), "module", s.module)
}

func (s *slogLogger) Debugf(msg string, args ...any) { s.log(slog.LevelDebug, msg, args) }
func (s *slogLogger) Infof(msg string, args ...any)  { s.log(slog.LevelInfo, msg, args) }
func (s *slogLogger) Warnf(msg string, args ...any)  { s.log(slog.LevelWarn, msg, args) }
func (s *slogLogger) Errorf(msg string, args ...any) { s.log(slog.LevelError, msg, args) }

func (s *slogLogger) Sub(module string) waLog.Logger {
	return newLogger(s.base, s.module+"/"+module)
}
