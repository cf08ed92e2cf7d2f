// Package logger adapts slog to the printf-style loggers third-party packages expect.
package logger

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
)

// New returns a stdlib logger that writes through base at level, tagged with component.
// Useful for http.Server.ErrorLog.
func New(base *slog.Logger, component string, level slog.Level) *log.Logger {
	if base == nil {
		base = slog.Default()
	}
	return slog.NewLogLogger(base.With("component", component).Handler(), level)
}

// MigrationLogger satisfies goose's Logger on top of slog.
type MigrationLogger struct {
	log  *slog.Logger
	exit func(int)
}

// NewMigrationLogger tags every migration line with component.
func NewMigrationLogger(base *slog.Logger, component string) *MigrationLogger {
	if base == nil {
		base = slog.Default()
	}
	return &MigrationLogger{log: base.With("component", component), exit: os.Exit}
}

// Printf logs at info.
func (m *MigrationLogger) Printf(format string, v ...any) {
	m.log.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Fatalf logs at error and exits the process.
func (m *MigrationLogger) Fatalf(format string, v ...any) {
	m.log.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
	m.exit(1)
}
