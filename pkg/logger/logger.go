package logger

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"

	"github.com/chaos-whoi/whoi-slocum-adaptive-networking/pkg/clock"
)

// New builds the process-wide logger. debug mirrors the DEBUG env var from
// spec.md §6: when set, adapters and workers log at debug level instead of
// info. Every record is stamped with c.Now(): the wall clock for a real
// Clock, the fake time for a fake one. The stamp is not scaled by
// TIME_SPEED.
func New(debug bool, c *clock.Clock) *slog.Logger {
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(formatRFC3339Millis(c.Now()))
			}
			if s, ok := a.Value.Any().(string); ok && s == "" {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func formatRFC3339Millis(t time.Time) string {
	t = t.UTC()
	base := t.Format("2006-01-02T15:04:05")
	ms := t.Nanosecond() / 1_000_000
	return fmt.Sprintf("%s.%03dZ", base, ms)
}
