// Package logging configures structured, leveled subsystem loggers. Every
// package declares its own logger with Logger("name") and logs key/value
// pairs; Setup applies the process-wide level, format and output.
package logging

import (
	"fmt"
	"strings"

	golog "github.com/ipfs/go-log/v2"

	"github.com/ipranges/internal/config"
)

// EventLogger is the logger type returned by Logger
type EventLogger = golog.ZapEventLogger

// Logger returns the named subsystem logger
func Logger(system string) *EventLogger {
	return golog.Logger(system)
}

// ParseFormat maps a configured format name onto a go-log output format.
// Unknown names fall back to colorized console output.
func ParseFormat(s string) golog.LogFormat {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return golog.JSONOutput
	case "plain", "text", "plaintext":
		return golog.PlaintextOutput
	default:
		return golog.ColorizedOutput
	}
}

// Setup applies cfg to every subsystem logger
func Setup(cfg config.LoggingConfig) error {
	level, err := golog.LevelFromString(levelOrDefault(cfg.Level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	lc := golog.Config{
		Format: ParseFormat(cfg.Format),
		Level:  level,
		Stderr: cfg.File == "",
		File:   cfg.File,
	}
	golog.SetupLogging(lc)

	for system, lvl := range cfg.Subsystems {
		if err := golog.SetLogLevel(system, lvl); err != nil {
			return fmt.Errorf("set log level for %s: %w", system, err)
		}
	}
	return nil
}

func levelOrDefault(s string) string {
	if strings.TrimSpace(s) == "" {
		return "info"
	}
	return strings.ToLower(s)
}
