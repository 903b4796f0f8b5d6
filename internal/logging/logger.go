package logging

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	// LevelCritical marks incidents that need operator follow-up. It is never filtered.
	LevelCritical
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "CRITICAL"}

func (l Level) String() string {
	if l < LevelDebug || l > LevelCritical {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel maps a LOG_LEVEL value to a Level, defaulting to info.
func ParseLevel(s string) Level {
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

// Fields is the structured payload attached to an entry.
type Fields = map[string]interface{}

// LogEntry is one JSON line. TraceID and SpanID are set when the logger was
// derived from a context carrying a sampled or remote span.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	TraceID   string `json:"trace_id,omitempty"`
	SpanID    string `json:"span_id,omitempty"`
	Fields    Fields `json:"fields,omitempty"`
}

// sink is shared by a logger and everything derived from it, so derived
// loggers serialize their writes and follow level changes on the root.
type sink struct {
	mu     sync.Mutex
	output io.Writer
	level  Level
}

// Logger writes structured JSON lines.
type Logger struct {
	sink    *sink
	fields  Fields
	traceID string
	spanID  string
}

func New() *Logger {
	return &Logger{sink: &sink{output: os.Stdout, level: LevelInfo}}
}

func (l *Logger) SetOutput(w io.Writer) *Logger {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.output = w
	return l
}

func (l *Logger) SetLevel(level Level) *Logger {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.level = level
	return l
}

func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(Fields{key: value})
}

// WithFields returns a derived logger. The receiver is not modified.
func (l *Logger) WithFields(fields Fields) *Logger {
	child := l.derive()
	for k, v := range fields {
		child.fields[k] = v
	}
	return child
}

// WithContext returns a derived logger that stamps entries with the trace and
// span of the span in ctx. Without a valid span it returns l unchanged.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return l
	}
	child := l.derive()
	child.traceID = sc.TraceID().String()
	child.spanID = sc.SpanID().String()
	return child
}

func (l *Logger) derive() *Logger {
	fields := make(Fields, len(l.fields))
	for k, v := range l.fields {
		fields[k] = v
	}
	return &Logger{sink: l.sink, fields: fields, traceID: l.traceID, spanID: l.spanID}
}

func (l *Logger) Debug(msg string, fields ...Fields) { l.log(LevelDebug, msg, fields) }
func (l *Logger) Info(msg string, fields ...Fields)  { l.log(LevelInfo, msg, fields) }
func (l *Logger) Warn(msg string, fields ...Fields)  { l.log(LevelWarn, msg, fields) }
func (l *Logger) Error(msg string, fields ...Fields) { l.log(LevelError, msg, fields) }

// Critical logs an incident. The entry always carries "incident": true.
func (l *Logger) Critical(msg string, fields ...Fields) {
	l.log(LevelCritical, msg, append(fields, Fields{"incident": true}))
}

func (l *Logger) log(level Level, msg string, extra []Fields) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	if level < l.sink.level && level != LevelCritical {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level.String(),
		Message:   msg,
		TraceID:   l.traceID,
		SpanID:    l.spanID,
	}
	if n := len(l.fields) + len(extra); n > 0 {
		merged := make(Fields, n)
		for k, v := range l.fields {
			merged[k] = v
		}
		for _, f := range extra {
			for k, v := range f {
				merged[k] = v
			}
		}
		if len(merged) > 0 {
			entry.Fields = merged
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		// Unmarshalable field values; keep the message.
		io.WriteString(l.sink.output, entry.Timestamp+" "+entry.Level+" "+msg+"\n")
		return
	}
	l.sink.output.Write(append(data, '\n'))
}

// Default is the process-wide logger used by the package-level helpers.
var Default = New()

func SetDefaultLevel(level Level) {
	Default.SetLevel(level)
}

func Debug(msg string, fields ...Fields)    { Default.Debug(msg, fields...) }
func Info(msg string, fields ...Fields)     { Default.Info(msg, fields...) }
func Warn(msg string, fields ...Fields)     { Default.Warn(msg, fields...) }
func Error(msg string, fields ...Fields)    { Default.Error(msg, fields...) }
func Critical(msg string, fields ...Fields) { Default.Critical(msg, fields...) }
