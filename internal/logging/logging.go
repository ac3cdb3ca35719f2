// Package logging wires up log/slog with hermannm.dev/devlog, the readable
// terminal handler used across the example pack's CLI tools, so every
// subcommand gets the same structured-but-human-legible log output.
package logging

import (
	"io"
	"log/slog"

	"hermannm.dev/devlog"
)

// New builds a slog.Logger writing through devlog at the given level.
func New(w io.Writer, level slog.Level) *slog.Logger {
	levelVar := new(slog.LevelVar)
	levelVar.Set(level)
	return slog.New(devlog.NewHandler(w, &devlog.Options{Level: levelVar}))
}

// SetDefault installs a devlog-backed logger as slog's package-level default.
func SetDefault(w io.Writer, level slog.Level) *slog.Logger {
	logger := New(w, level)
	slog.SetDefault(logger)
	return logger
}
