// Package logger configures the process wide log handler and hands out named loggers.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/cenkalti/log"
)

var (
	mu      sync.Mutex
	handler log.Handler
)

func init() {
	h := log.NewFileHandler(os.Stderr)
	h.SetLevel(log.INFO)
	SetHandler(h)
}

// SetHandler changes the global logging handler.
// Loggers created before the call keep the old handler.
func SetHandler(h log.Handler) {
	mu.Lock()
	defer mu.Unlock()
	handler = h
	handler.SetFormatter(logFormatter{})
}

// SetLevel sets the logging level on the global handler.
func SetLevel(l log.Level) {
	mu.Lock()
	defer mu.Unlock()
	handler.SetLevel(l)
}

// SetDebug switches the global handler between DEBUG and INFO levels.
func SetDebug(enabled bool) {
	if enabled {
		SetLevel(log.DEBUG)
	} else {
		SetLevel(log.INFO)
	}
}

// Logger is for logging messages from inside of the program in various logging levels.
type Logger log.Logger

// New returns a new Logger with a name.
// Log messages are prefixed with this name by the default Handler.
func New(name string) Logger {
	mu.Lock()
	h := handler
	mu.Unlock()
	logger := log.NewLogger(name)
	logger.SetLevel(log.DEBUG) // forward all messages to handler
	logger.SetHandler(h)
	return logger
}

type logFormatter struct{}

// Format outputs a message like "2014-02-28 18:15:57 INFO     [peer 1.2.3.4:6881] peer.go:42 connected"
func (f logFormatter) Format(rec *log.Record) string {
	return fmt.Sprintf("%s %-8s [%s] %s %s",
		fmt.Sprint(rec.Time)[:19],
		rec.Level,
		rec.LoggerName,
		filepath.Base(rec.Filename)+":"+strconv.Itoa(rec.Line),
		rec.Message)
}
