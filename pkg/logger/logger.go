package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"
)

// LogLevel represents the logging level
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "INFO"
	}
}

// ParseLogLevel parses a string into a LogLevel, defaulting to INFO
func ParseLogLevel(level string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return DebugLevel
	case "INFO":
		return InfoLevel
	case "WARN", "WARNING":
		return WarnLevel
	case "ERROR":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

type Logger struct {
	out    *log.Logger
	errOut *log.Logger
	level  LogLevel
}

var defaultLogger *Logger

func init() {
	defaultLogger = NewLoggerWithLevel(ParseLogLevel(os.Getenv("LOG_LEVEL")))
}

// NewLogger creates a new logger instance with INFO level
func NewLogger() *Logger {
	return NewLoggerWithLevel(InfoLevel)
}

// NewLoggerWithLevel creates a new logger instance with the specified level
func NewLoggerWithLevel(level LogLevel) *Logger {
	return &Logger{
		out:    log.New(os.Stdout, "", 0),
		errOut: log.New(os.Stderr, "", 0),
		level:  level,
	}
}

// SetLogLevel sets the level of the default logger
func SetLogLevel(level LogLevel) {
	defaultLogger.level = level
}

// SetLogLevelFromString sets the level of the default logger from a string
func SetLogLevelFromString(level string) {
	SetLogLevel(ParseLogLevel(level))
}

// GetLogLevel returns the current level of the default logger
func GetLogLevel() LogLevel {
	return defaultLogger.level
}

func (l *Logger) log(dst *log.Logger, level LogLevel, format string, args ...interface{}) {
	if level < l.level {
		return
	}
	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	dst.Println(fmt.Sprintf("[%s] %s: %s", timestamp, level.String(), fmt.Sprintf(format, args...)))
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(l.out, DebugLevel, format, args...)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(l.out, InfoLevel, format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(l.out, WarnLevel, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(l.errOut, ErrorLevel, format, args...)
}

// Package-level convenience functions using the default logger

// Debug logs a debug message using the default logger
func Debug(format string, args ...interface{}) {
	defaultLogger.Debug(format, args...)
}

// Info logs an info message using the default logger
func Info(format string, args ...interface{}) {
	defaultLogger.Info(format, args...)
}

// Warn logs a warning message using the default logger
func Warn(format string, args ...interface{}) {
	defaultLogger.Warn(format, args...)
}

// Error logs an error message using the default logger
func Error(format string, args ...interface{}) {
	defaultLogger.Error(format, args...)
}
