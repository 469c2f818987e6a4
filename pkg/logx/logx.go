// Package logx provides structured logging for the tagpos daemon.
package logx

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus with a component field and key/value style calls.
type Logger struct {
	entry *logrus.Entry
}

// NewLogger creates a logger at the given level (trace|debug|info|warn|error)
// tagged with a component name. Unknown levels fall back to info.
func NewLogger(level, component string) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})

	parsed, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.SetLevel(parsed)

	entry := logrus.NewEntry(l)
	if component != "" {
		entry = entry.WithField("component", component)
	}
	return &Logger{entry: entry}
}

// WithComponent returns a logger scoped to a sub-component.
func (lg *Logger) WithComponent(component string) *Logger {
	return &Logger{entry: lg.entry.WithField("component", component)}
}

// fields turns alternating key/value arguments into logrus fields. A
// trailing key without a value is recorded as-is.
func fields(kv []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		f[key] = kv[i+1]
	}
	if len(kv)%2 == 1 {
		f["_extra"] = kv[len(kv)-1]
	}
	return f
}

// Trace logs at trace level with key/value pairs.
func (lg *Logger) Trace(msg string, kv ...interface{}) {
	lg.entry.WithFields(fields(kv)).Trace(msg)
}

// Debug logs at debug level with key/value pairs.
func (lg *Logger) Debug(msg string, kv ...interface{}) {
	lg.entry.WithFields(fields(kv)).Debug(msg)
}

// Info logs at info level with key/value pairs.
func (lg *Logger) Info(msg string, kv ...interface{}) {
	lg.entry.WithFields(fields(kv)).Info(msg)
}

// Warn logs at warn level with key/value pairs.
func (lg *Logger) Warn(msg string, kv ...interface{}) {
	lg.entry.WithFields(fields(kv)).Warn(msg)
}

// Error logs at error level with key/value pairs.
func (lg *Logger) Error(msg string, kv ...interface{}) {
	lg.entry.WithFields(fields(kv)).Error(msg)
}

// LogVerbose logs a named event with a field map at trace level.
func (lg *Logger) LogVerbose(event string, data map[string]interface{}) {
	lg.entry.WithFields(logrus.Fields(data)).Trace(event)
}

// LogDebugVerbose logs a named event with a field map at debug level.
func (lg *Logger) LogDebugVerbose(event string, data map[string]interface{}) {
	lg.entry.WithFields(logrus.Fields(data)).Debug(event)
}
