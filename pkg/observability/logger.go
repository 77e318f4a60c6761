package observability

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"time"
)

// StandardLogger is a logger implementation that uses the standard log package
type StandardLogger struct {
	prefix string
	level  LogLevel
	fields map[string]interface{}
	out    io.Writer
}

// NewStandardLogger creates a new StandardLogger with the given prefix
func NewStandardLogger(prefix string) Logger {
	return &StandardLogger{
		prefix: prefix,
		level:  LogLevelInfo, // Default to INFO level
		out:    os.Stderr,
	}
}

// NewLoggerFromConfig creates a StandardLogger honoring the configured
// level and output destination.
func NewLoggerFromConfig(prefix string, cfg LoggingConfig) Logger {
	l := &StandardLogger{
		prefix: prefix,
		level:  parseLevel(cfg.Level),
		out:    os.Stderr,
	}
	if cfg.Output == "file" && cfg.FilePath != "" {
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Printf("failed to open log file %s: %v, falling back to stderr", cfg.FilePath, err)
		} else {
			l.out = f
		}
	}
	return l
}

func parseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LogLevelDebug
	case "WARN", "WARNING":
		return LogLevelWarn
	case "ERROR":
		return LogLevelError
	case "FATAL":
		return LogLevelFatal
	default:
		return LogLevelInfo
	}
}

// WithLevel returns a new logger with the specified log level
func (l *StandardLogger) WithLevel(level LogLevel) *StandardLogger {
	return &StandardLogger{
		prefix: l.prefix,
		level:  level,
		fields: l.fields,
		out:    l.out,
	}
}

// Debug logs a debug message
func (l *StandardLogger) Debug(msg string, fields map[string]interface{}) {
	if l.levelEnabled(LogLevelDebug) {
		l.log(LogLevelDebug, msg, fields)
	}
}

// Info logs an info message
func (l *StandardLogger) Info(msg string, fields map[string]interface{}) {
	if l.levelEnabled(LogLevelInfo) {
		l.log(LogLevelInfo, msg, fields)
	}
}

// Warn logs a warning message
func (l *StandardLogger) Warn(msg string, fields map[string]interface{}) {
	if l.levelEnabled(LogLevelWarn) {
		l.log(LogLevelWarn, msg, fields)
	}
}

// Error logs an error message
func (l *StandardLogger) Error(msg string, fields map[string]interface{}) {
	l.log(LogLevelError, msg, fields)
}

// Fatal logs a fatal message and exits
func (l *StandardLogger) Fatal(msg string, fields map[string]interface{}) {
	l.log(LogLevelFatal, msg, fields)
	os.Exit(1)
}

// Debugf logs a formatted debug message
func (l *StandardLogger) Debugf(format string, args ...interface{}) {
	if l.levelEnabled(LogLevelDebug) {
		l.log(LogLevelDebug, fmt.Sprintf(format, args...), nil)
	}
}

// Infof logs a formatted info message
func (l *StandardLogger) Infof(format string, args ...interface{}) {
	if l.levelEnabled(LogLevelInfo) {
		l.log(LogLevelInfo, fmt.Sprintf(format, args...), nil)
	}
}

// Warnf logs a formatted warning message
func (l *StandardLogger) Warnf(format string, args ...interface{}) {
	if l.levelEnabled(LogLevelWarn) {
		l.log(LogLevelWarn, fmt.Sprintf(format, args...), nil)
	}
}

// Errorf logs a formatted error message
func (l *StandardLogger) Errorf(format string, args ...interface{}) {
	l.log(LogLevelError, fmt.Sprintf(format, args...), nil)
}

// Fatalf logs a formatted fatal message and exits
func (l *StandardLogger) Fatalf(format string, args ...interface{}) {
	l.log(LogLevelFatal, fmt.Sprintf(format, args...), nil)
	os.Exit(1)
}

// WithPrefix returns a new logger with the given prefix
func (l *StandardLogger) WithPrefix(prefix string) Logger {
	return &StandardLogger{
		prefix: prefix,
		level:  l.level,
		fields: l.fields,
		out:    l.out,
	}
}

// With returns a new logger that includes the given fields on every line
func (l *StandardLogger) With(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &StandardLogger{
		prefix: l.prefix,
		level:  l.level,
		fields: merged,
		out:    l.out,
	}
}

// formatFields formats fields as a string
func (l *StandardLogger) formatFields(fields map[string]interface{}) string {
	if len(l.fields) == 0 && len(fields) == 0 {
		return ""
	}
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, merged[k])
	}
	return b.String()
}

// levelEnabled checks if the given log level is enabled
func (l *StandardLogger) levelEnabled(level LogLevel) bool {
	levelHierarchy := map[LogLevel]int{
		LogLevelDebug: 0,
		LogLevelInfo:  1,
		LogLevelWarn:  2,
		LogLevelError: 3,
		LogLevelFatal: 4,
	}
	return levelHierarchy[level] >= levelHierarchy[l.level]
}

// log logs a message with the given level
func (l *StandardLogger) log(level LogLevel, msg string, fields map[string]interface{}) {
	timestamp := time.Now().Format("2006-01-02T15:04:05.000Z07:00")
	logPrefix := fmt.Sprintf("%s [%s] [%s]", timestamp, level, l.prefix)
	fieldsStr := l.formatFields(fields)

	if l.out == os.Stderr {
		log.Printf("%s %s%s", logPrefix, msg, fieldsStr)
	} else {
		fmt.Fprintf(l.out, "%s %s%s\n", logPrefix, msg, fieldsStr)
	}
}

// NoopLogger is a logger that does nothing
type NoopLogger struct{}

// Debug implements Logger.Debug
func (l *NoopLogger) Debug(msg string, fields map[string]interface{}) {}

// Info implements Logger.Info
func (l *NoopLogger) Info(msg string, fields map[string]interface{}) {}

// Warn implements Logger.Warn
func (l *NoopLogger) Warn(msg string, fields map[string]interface{}) {}

// Error implements Logger.Error
func (l *NoopLogger) Error(msg string, fields map[string]interface{}) {}

// Fatal implements Logger.Fatal
func (l *NoopLogger) Fatal(msg string, fields map[string]interface{}) {}

// Debugf implements Logger.Debugf
func (l *NoopLogger) Debugf(format string, args ...interface{}) {}

// Infof implements Logger.Infof
func (l *NoopLogger) Infof(format string, args ...interface{}) {}

// Warnf implements Logger.Warnf
func (l *NoopLogger) Warnf(format string, args ...interface{}) {}

// Errorf implements Logger.Errorf
func (l *NoopLogger) Errorf(format string, args ...interface{}) {}

// Fatalf implements Logger.Fatalf
func (l *NoopLogger) Fatalf(format string, args ...interface{}) {}

// WithPrefix implements Logger.WithPrefix
func (l *NoopLogger) WithPrefix(prefix string) Logger {
	return l
}

// With implements Logger.With
func (l *NoopLogger) With(fields map[string]interface{}) Logger {
	return l
}

// NewNoopLogger creates a new NoopLogger
func NewNoopLogger() Logger {
	return &NoopLogger{}
}
