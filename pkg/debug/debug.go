// Package debug provides conditional development logging for aios.
//
// Debug logging is enabled by setting the AIOS_DEBUG environment variable:
//
//	AIOS_DEBUG=1 aios -serve
//
// or programmatically (the CLI enables it when the configured environment is
// "development"). When enabled, messages are written to stderr. When disabled
// (default), all functions are no-ops.
//
// Policy corrections made by the analytics sanitizer (dropped forbidden
// fields, unknown event names) are reported through Warn so they are visible
// during development and invisible in production.
package debug

import (
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	enabled atomic.Bool
	mu      sync.RWMutex
	logger  = newLogger(os.Stderr)
)

func init() {
	if os.Getenv("AIOS_DEBUG") != "" {
		enabled.Store(true)
	}
}

func newLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000000"}).
		With().
		Timestamp().
		Str("scope", "AIOS_DEBUG").
		Logger()
}

// Enabled returns whether debug logging is enabled.
func Enabled() bool {
	return enabled.Load()
}

// SetEnabled allows programmatic control of debug logging.
func SetEnabled(e bool) {
	enabled.Store(e)
}

// SetOutput redirects debug output, mainly for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = newLogger(w)
}

func current() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := logger
	return &l
}

// Log writes a debug message if debug logging is enabled.
// Uses printf-style formatting.
func Log(format string, args ...any) {
	if !Enabled() {
		return
	}
	current().Debug().Msgf(format, args...)
}

// Warn writes a non-fatal development warning tagged with the reporting
// component.
func Warn(component, format string, args ...any) {
	if !Enabled() {
		return
	}
	current().Warn().Str("component", component).Msgf(format, args...)
}

// LogTiming writes a timing message if debug logging is enabled.
func LogTiming(name string, d time.Duration) {
	if !Enabled() {
		return
	}
	current().Debug().Dur("took", d).Msg(name)
}

// LogEnterExit logs function entry and exit with timing.
// Usage:
//
//	func myFunc() {
//	    defer debug.LogEnterExit("myFunc")()
//	    // ...
//	}
func LogEnterExit(name string) func() {
	if !Enabled() {
		return func() {}
	}
	current().Debug().Msgf("-> %s", name)
	start := time.Now()
	return func() {
		current().Debug().Msgf("<- %s (%v)", name, time.Since(start))
	}
}
