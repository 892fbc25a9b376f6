// Package logging provides the process-wide structured logger and
// crash handling. Log lines carry a category tag and structured
// fields; recent entries are kept in a ring buffer for the operator
// API.
package logging

import (
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Category tags a log entry with the subsystem that produced it.
type Category string

const (
	CatSystem    Category = "system"
	CatWebSocket Category = "websocket"
	CatAPDU      Category = "apdu"
	CatHTTP      Category = "http"
	CatStore     Category = "store"
)

// Level mirrors logrus levels for the Init signature.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Entry is one buffered log record, as served by the operator API.
type Entry struct {
	Time     time.Time      `json:"time"`
	Level    string         `json:"level"`
	Category Category       `json:"category"`
	Message  string         `json:"message"`
	Fields   map[string]any `json:"fields,omitempty"`
}

var (
	mu      sync.RWMutex
	log     = logrus.New()
	buffer  []Entry
	bufCap  = 1000
	bufNext int
	bufFull bool
)

// Init configures the logger: ring buffer capacity and minimum level.
// Call once at startup before any goroutines log.
func Init(bufferSize int, level Level) {
	mu.Lock()
	defer mu.Unlock()

	if bufferSize > 0 {
		bufCap = bufferSize
	}
	buffer = make([]Entry, bufCap)
	bufNext = 0
	bufFull = false

	parsed, err := logrus.ParseLevel(string(level))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
}

// SetFileOutput tees log output to a size-rotated file.
func SetFileOutput(path string, maxSizeMB, maxBackups, maxAgeDays int) {
	mu.Lock()
	defer mu.Unlock()

	rotated := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
	}
	log.SetOutput(io.MultiWriter(log.Out, rotated))
}

// SetJSONFormat switches the logger to JSON lines, for log shippers.
func SetJSONFormat() {
	mu.Lock()
	defer mu.Unlock()
	log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
}

func record(level logrus.Level, cat Category, msg string, fields map[string]any) {
	entry := log.WithField("category", string(cat))
	if fields != nil {
		entry = entry.WithFields(logrus.Fields(fields))
	}
	entry.Log(level, msg)

	mu.Lock()
	defer mu.Unlock()
	if buffer == nil {
		buffer = make([]Entry, bufCap)
	}
	buffer[bufNext] = Entry{
		Time:     time.Now(),
		Level:    level.String(),
		Category: cat,
		Message:  msg,
		Fields:   fields,
	}
	bufNext = (bufNext + 1) % bufCap
	if bufNext == 0 {
		bufFull = true
	}
}

// Debug logs at debug level.
func Debug(cat Category, msg string, fields map[string]any) {
	record(logrus.DebugLevel, cat, msg, fields)
}

// Info logs at info level.
func Info(cat Category, msg string, fields map[string]any) {
	record(logrus.InfoLevel, cat, msg, fields)
}

// Warn logs at warning level.
func Warn(cat Category, msg string, fields map[string]any) {
	record(logrus.WarnLevel, cat, msg, fields)
}

// Error logs at error level.
func Error(cat Category, msg string, fields map[string]any) {
	record(logrus.ErrorLevel, cat, msg, fields)
}

// Recent returns up to limit buffered entries, newest first.
func Recent(limit int) []Entry {
	mu.RLock()
	defer mu.RUnlock()

	size := bufNext
	if bufFull {
		size = bufCap
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]Entry, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (bufNext - i + bufCap) % bufCap
		out = append(out, buffer[idx])
	}
	return out
}
