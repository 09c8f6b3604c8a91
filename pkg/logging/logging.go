package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/sirupsen/logrus"
)

// Logger is the process-wide default used when a component is handed no
// logger of its own.
var Logger *slog.Logger

func init() {
	Logger = New("info")
}

// ParseLevel maps a level name onto a slog level. Unknown names fall back
// to info.
func ParseLevel(name string) slog.Level {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warning" {
		return slog.LevelWarn
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// New returns a colored text logger on stderr at the named level. Debug
// loggers also report the source line.
func New(level string) *slog.Logger {
	lvl := ParseLevel(level)
	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lvl,
		TimeFormat: time.RFC3339,
		AddSource:  lvl <= slog.LevelDebug,
	})
	return slog.New(handler)
}

// Logrus returns a logrus logger for the badger journal store, set to the
// lowest level l has enabled. When l has nothing enabled the logrus logger
// discards its output.
func Logrus(l *slog.Logger) *logrus.Logger {
	out := logrus.New()
	out.SetOutput(os.Stderr)
	out.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	levels := []struct {
		slog   slog.Level
		logrus logrus.Level
	}{
		{slog.LevelDebug, logrus.DebugLevel},
		{slog.LevelInfo, logrus.InfoLevel},
		{slog.LevelWarn, logrus.WarnLevel},
		{slog.LevelError, logrus.ErrorLevel},
	}
	for _, lv := range levels {
		if l.Enabled(context.Background(), lv.slog) {
			out.SetLevel(lv.logrus)
			return out
		}
	}
	out.SetOutput(io.Discard)
	return out
}
