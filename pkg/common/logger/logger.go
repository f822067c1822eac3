package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Logger wraps the standard logger with a minimum level.
type Logger struct {
	mu    sync.Mutex
	out   *log.Logger
	level LogLevel
}

// LogLevel represents the logging level
type LogLevel int

const (
	// DebugLevel logs are typically verbose
	DebugLevel LogLevel = iota
	// InfoLevel is the default logging priority
	InfoLevel
	// WarnLevel logs are warnings
	WarnLevel
	// ErrorLevel logs are high-priority
	ErrorLevel
)

var levelNames = map[LogLevel]string{
	DebugLevel: "DEBUG",
	InfoLevel:  "INFO",
	WarnLevel:  "WARN",
	ErrorLevel: "ERROR",
}

func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

var std = &Logger{out: log.New(os.Stdout, "", log.LstdFlags), level: InfoLevel}

// ParseLevel maps "debug", "info", "warn"/"warning" and "error" (any case)
// to a LogLevel. Unknown or empty values yield InfoLevel and ok=false.
func ParseLevel(s string) (LogLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, true
	case "info":
		return InfoLevel, true
	case "warn", "warning":
		return WarnLevel, true
	case "error":
		return ErrorLevel, true
	}
	return InfoLevel, false
}

// Initialize sets the global level from a string such as "debug" or "warn".
func Initialize(level string) {
	lvl, ok := ParseLevel(level)
	std.mu.Lock()
	defer std.mu.Unlock()
	std.level = lvl
	if lvl == DebugLevel {
		std.out.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	} else {
		std.out.SetFlags(log.Ldate | log.Ltime)
	}
	if !ok && level != "" {
		std.output(WarnLevel, "unknown log level %q, using info", level)
	}
}

// SetOutput redirects the global logger, mostly for tests.
func SetOutput(w io.Writer) {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.out.SetOutput(w)
}

// Level reports the current global level.
func Level() LogLevel {
	std.mu.Lock()
	defer std.mu.Unlock()
	return std.level
}

func (l *Logger) log(level LogLevel, format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level {
		return
	}
	l.output(level, format, v...)
}

// output expects l.mu to be held.
func (l *Logger) output(level LogLevel, format string, v ...interface{}) {
	l.out.SetPrefix("[" + level.String() + "] ")
	_ = l.out.Output(4, fmt.Sprintf(format, v...))
}

// Package-level helpers
func Debug(format string, v ...interface{}) { std.log(DebugLevel, format, v...) }
func Info(format string, v ...interface{})  { std.log(InfoLevel, format, v...) }
func Warn(format string, v ...interface{})  { std.log(WarnLevel, format, v...) }
func Error(format string, v ...interface{}) { std.log(ErrorLevel, format, v...) }
