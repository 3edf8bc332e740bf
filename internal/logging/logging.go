// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	mu     sync.RWMutex
	logger zerolog.Logger
)

func init() {
	Configure(os.Stderr, zerolog.InfoLevel)
}

// Configure replaces the package logger. Output goes through a console
// writer so CLI users see readable lines on stderr.
func Configure(out io.Writer, level zerolog.Level) {
	w := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "15:04:05",
	}
	l := zerolog.New(w).Level(level).With().Timestamp().Logger()

	mu.Lock()
	logger = l
	log.Logger = l
	mu.Unlock()
}

// SetDebug switches between debug and info level.
func SetDebug(on bool) {
	mu.Lock()
	defer mu.Unlock()
	if on {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}
	log.Logger = logger
}

// SetLevel applies a level name from config ("debug", "info", "warn",
// "error"). Unknown names leave the level unchanged and return false.
func SetLevel(name string) bool {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil || name == "" {
		return false
	}
	mu.Lock()
	logger = logger.Level(lvl)
	log.Logger = logger
	mu.Unlock()
	return true
}

// L returns the current logger.
func L() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// With returns a sub-logger tagged with a component name.
func With(component string) zerolog.Logger {
	l := L()
	return l.With().Str("component", component).Logger()
}

// Nop returns a logger that discards everything. Used as the default in
// components built without a logger.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

// Info starts an info event.
func Info() *zerolog.Event {
	l := L()
	return l.Info()
}

// Warn starts a warning event.
func Warn() *zerolog.Event {
	l := L()
	return l.Warn()
}

// Error starts an error event.
func Error() *zerolog.Event {
	l := L()
	return l.Error()
}

// Debug starts a debug event.
func Debug() *zerolog.Event {
	l := L()
	return l.Debug()
}
