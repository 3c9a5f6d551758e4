package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// LevelDebug is the debug log level
	LevelDebug LogLevel = iota
	// LevelInfo is the info log level
	LevelInfo
	// LevelWarn is the warning log level
	LevelWarn
	// LevelError is the error log level
	LevelError
)

var (
	currentLevel LogLevel
	levelOnce    sync.Once

	// errorLog is the error stream. It is swapped once at startup by
	// SetOutput and read by every request goroutine afterwards.
	errorLog   = log.New(os.Stderr, "", log.LstdFlags)
	errorLogMu sync.RWMutex
)

// ParseLevel converts a level name to a LogLevel. Unknown names map to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// initLevel initializes the log level from environment variables
func initLevel() {
	levelOnce.Do(func() {
		if debug := os.Getenv("DEBUG"); debug != "" {
			switch strings.ToLower(debug) {
			case "1", "true", "yes", "on":
				currentLevel = LevelDebug
				return
			}
		}

		currentLevel = ParseLevel(os.Getenv("LOG_LEVEL"))
	})
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	initLevel()
	return currentLevel
}

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	return GetLevel() <= LevelDebug
}

// SetOutput redirects the error log stream.
func SetOutput(w io.Writer) {
	errorLogMu.Lock()
	defer errorLogMu.Unlock()
	errorLog = log.New(w, "", log.LstdFlags)
}

// OpenErrorLog opens the error log destination named by target and installs
// it as the output. "-" and "" keep stderr. The returned closer is a no-op
// for stderr.
func OpenErrorLog(target string) (io.Closer, error) {
	if target == "" || target == "-" {
		SetOutput(os.Stderr)
		return io.NopCloser(nil), nil
	}

	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open error log %s: %w", target, err)
	}
	SetOutput(f)
	return f, nil
}

func output(prefix, format string, args ...interface{}) {
	errorLogMu.RLock()
	l := errorLog
	errorLogMu.RUnlock()
	// Calldepth 3 skips output and the exported wrapper.
	_ = l.Output(3, fmt.Sprintf(prefix+format, args...))
}

// Debug logs a debug message (only if DEBUG=true or LOG_LEVEL=debug)
func Debug(format string, args ...interface{}) {
	if GetLevel() <= LevelDebug {
		output("[DEBUG] ", format, args...)
	}
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	if GetLevel() <= LevelInfo {
		output("[INFO] ", format, args...)
	}
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	if GetLevel() <= LevelWarn {
		output("[WARN] ", format, args...)
	}
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	if GetLevel() <= LevelError {
		output("[ERROR] ", format, args...)
	}
}

// Fatal logs an error message and exits
func Fatal(format string, args ...interface{}) {
	output("[FATAL] ", format, args...)
	os.Exit(1)
}

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}

// levelWriter adapts the leveled logger to io.Writer for libraries that
// expect a *log.Logger, such as http.Server and httputil.ReverseProxy.
type levelWriter struct {
	level LogLevel
}

func (lw levelWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	switch lw.level {
	case LevelDebug:
		Debug("%s", msg)
	case LevelInfo:
		Info("%s", msg)
	case LevelWarn:
		Warn("%s", msg)
	default:
		Error("%s", msg)
	}
	return len(p), nil
}

// NewStdLogger returns a *log.Logger whose lines are written to the error
// log at the given level.
func NewStdLogger(level LogLevel) *log.Logger {
	return log.New(levelWriter{level: level}, "", 0)
}
