package logger

import (
	"log"
	"os"
	"strings"
)

// Level controls which messages are emitted. Ordered debug < info < warn < error.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var minLevel = levelFromEnv()

func levelFromEnv() Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// SetLevel overrides the minimum emitted level (used by tests).
func SetLevel(l Level) {
	minLevel = l
}

// Debug logs debug messages
func Debug(format string, args ...interface{}) {
	if minLevel <= LevelDebug {
		log.Printf("DEBUG: "+format, args...)
	}
}

// Info logs informational messages
func Info(format string, args ...interface{}) {
	if minLevel <= LevelInfo {
		log.Printf("INFO: "+format, args...)
	}
}

// Warn logs warning messages
func Warn(format string, args ...interface{}) {
	if minLevel <= LevelWarn {
		log.Printf("WARN: "+format, args...)
	}
}

// Error logs error messages
func Error(format string, args ...interface{}) {
	if minLevel <= LevelError {
		log.Printf("ERROR: "+format, args...)
	}
}
