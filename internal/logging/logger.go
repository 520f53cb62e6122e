// Package logging provides file-based structured logging with daily
// rotation, adapted from the collector's original single-writer logger.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents logging severity.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Field is a structured key-value pair attached to a log line.
type Field struct {
	Key   string
	Value interface{}
}

func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Logger writes daily-rotating, field-structured log lines to a file and
// to stdout simultaneously.
type Logger struct {
	mu       sync.Mutex
	file     *os.File
	logger   *log.Logger
	logDir   string
	filename string
	date     string
}

var global *Logger

// Init initializes the package-level logger. Safe to call once at startup.
func Init(logDir string) error {
	if logDir == "" {
		logDir = "./logs"
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	global = &Logger{
		logDir:   logDir,
		filename: "collector.log",
	}
	return global.rotateIfNeeded()
}

func (l *Logger) rotateIfNeeded() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	today := time.Now().UTC().Format("2006-01-02")
	if l.date == today && l.file != nil {
		return nil
	}

	if l.file != nil {
		l.file.Close()
	}

	logPath := filepath.Join(l.logDir, fmt.Sprintf("collector-%s.log", today))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	multi := io.MultiWriter(os.Stdout, file)
	l.file = file
	l.logger = log.New(multi, "", 0)
	l.date = today
	return nil
}

func formatFields(fields []Field) string {
	if len(fields) == 0 {
		return ""
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Key < fields[j].Key })
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s=%v", f.Key, f.Value))
	}
	return " " + strings.Join(parts, " ")
}

func (l *Logger) log(level Level, msg string, fields []Field) {
	if l == nil || l.logger == nil {
		log.Printf("[%s] %s%s", level.String(), msg, formatFields(fields))
		return
	}

	_ = l.rotateIfNeeded()

	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05Z")
	l.logger.Printf("[%s] [%s] %s%s", timestamp, level.String(), msg, formatFields(fields))
}

func Info(msg string, fields ...Field)  { global.log(LevelInfo, msg, fields) }
func Warn(msg string, fields ...Field)  { global.log(LevelWarn, msg, fields) }
func Error(msg string, fields ...Field) { global.log(LevelError, msg, fields) }

// Close releases the underlying file handle.
func Close() {
	if global != nil && global.file != nil {
		global.file.Close()
	}
}
