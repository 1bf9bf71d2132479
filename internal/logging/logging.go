package logging

import (
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// Init installs a charmbracelet logger as the slog default. LOG_LEVEL
// overrides fallback; the CLI passes log.ErrorLevel so log lines stay out of
// the TUI, the relay passes log.InfoLevel.
func Init(prefix string, fallback log.Level) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		Level:           levelFromEnv(fallback),
		Prefix:          prefix,
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
	})
	slog.SetDefault(slog.New(logger))
	return logger
}

func levelFromEnv(fallback log.Level) log.Level {
	l, ok := os.LookupEnv("LOG_LEVEL")
	if !ok {
		return fallback
	}
	switch l {
	case "dev", "development", "debug":
		return log.DebugLevel
	case "info":
		return log.InfoLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error", "production", "prod":
		return log.ErrorLevel
	}
	return fallback
}
