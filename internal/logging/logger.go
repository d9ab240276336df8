package logging

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"swingspin/bowler/internal/config"
)

// DeliveryIDField tags every log line emitted while a delivery is prepared.
const DeliveryIDField = "delivery_id"

// SessionIDField tags log lines with the running session identifier.
const SessionIDField = "session_id"

type contextKey string

var (
	loggerContextKey   = contextKey("bowler-logger")
	deliveryContextKey = contextKey("bowler-delivery-id")

	globalMu     sync.RWMutex
	globalLogger = newNopLogger()
)

// Level represents log verbosity ordering.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

var levelNames = [...]string{"debug", "info", "warn", "error", "fatal"}

var levelAliases = map[string]Level{
	"":        InfoLevel,
	"debug":   DebugLevel,
	"info":    InfoLevel,
	"warn":    WarnLevel,
	"warning": WarnLevel,
	"error":   ErrorLevel,
	"fatal":   FatalLevel,
}

func (l Level) String() string {
	if l < DebugLevel || int(l) >= len(levelNames) {
		return "info"
	}
	return levelNames[l]
}

// ParseLevel maps a configured level name onto a Level.
func ParseLevel(raw string) (Level, error) {
	if level, ok := levelAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return level, nil
	}
	return InfoLevel, fmt.Errorf("unknown log level %q", raw)
}

// Field represents a structured logging attribute.
type Field struct {
	Key   string
	Value any
}

// String returns a string field.
func String(key, value string) Field { return Field{Key: key, Value: value} }

// Strings returns a string slice field.
func Strings(key string, values []string) Field { return Field{Key: key, Value: values} }

// Int returns an int field.
func Int(key string, value int) Field { return Field{Key: key, Value: value} }

// Int64 returns an int64 field.
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

// Uint64 returns a uint64 field.
func Uint64(key string, value uint64) Field { return Field{Key: key, Value: value} }

// Float64 returns a float64 field.
func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }

// Duration returns a duration field rendered as a Go duration string.
func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value.String()} }

// Any returns a field holding an arbitrary JSON-encodable value.
func Any(key string, value any) Field { return Field{Key: key, Value: value} }

// Bool returns a bool field.
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

// Error returns an error field.
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// syncWriter describes a writer that can flush to durable storage.
type syncWriter interface {
	io.Writer
	Sync() error
}

// sink serialises writes from a logger and every logger derived from it.
type sink struct {
	mu      sync.Mutex
	targets []syncWriter
}

func (s *sink) write(line []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.targets {
		_, _ = t.Write(line)
	}
}

func (s *sink) sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs error
	for _, t := range s.targets {
		errs = errors.Join(errs, t.Sync())
	}
	return errs
}

// Logger emits one JSON object per line. Bound fields keep their insertion
// order and a later binding of the same key replaces the earlier one.
type Logger struct {
	level  Level
	out    *sink
	now    func() time.Time
	fields []Field
}

// New constructs a JSON logger with on-disk rotation and optional stdout
// mirroring, and installs it as the global logger.
func New(cfg config.LoggingConfig) (*Logger, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("logging path must be specified")
	}
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	file, err := newRotatingWriter(cfg)
	if err != nil {
		return nil, err
	}
	out := &sink{targets: []syncWriter{file}}
	if cfg.Stdout && os.Stdout != nil {
		out.targets = append(out.targets, os.Stdout)
	}
	logger := &Logger{level: level, out: out, now: time.Now, fields: []Field{String("service", "bowler")}}
	ReplaceGlobals(logger)
	return logger, nil
}

// NewTestLogger returns a logger that discards output, suitable for tests.
func NewTestLogger() *Logger {
	return newNopLogger()
}

// NewWriterLogger emits JSON lines to w at the given level.
func NewWriterLogger(w io.Writer, level Level) *Logger {
	return &Logger{level: level, out: &sink{targets: []syncWriter{nopSyncer{w}}}, now: time.Now}
}

type nopSyncer struct{ io.Writer }

func (nopSyncer) Sync() error { return nil }

func newNopLogger() *Logger {
	return NewWriterLogger(io.Discard, DebugLevel)
}

// ReplaceGlobals swaps the fallback logger used when no context logger is present.
func ReplaceGlobals(logger *Logger) {
	if logger == nil {
		return
	}
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// L returns the current global logger.
func L() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// With returns a child logger carrying extra fields. The parent is unchanged.
func (l *Logger) With(fields ...Field) *Logger {
	if l == nil {
		return L().With(fields...)
	}
	child := *l
	child.fields = mergeFields(l.fields, fields)
	return &child
}

func mergeFields(base, extra []Field) []Field {
	out := make([]Field, len(base), len(base)+len(extra))
	copy(out, base)
	for _, f := range extra {
		replaced := false
		for i := range out {
			if out[i].Key == f.Key {
				out[i] = f
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, f)
		}
	}
	return out
}

// Sync flushes buffered output to durable storage.
func (l *Logger) Sync() error {
	if l == nil || l.out == nil {
		return nil
	}
	return l.out.sync()
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, fields ...Field) { l.log(DebugLevel, message, fields) }

// Info logs an informational message.
func (l *Logger) Info(message string, fields ...Field) { l.log(InfoLevel, message, fields) }

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields ...Field) { l.log(WarnLevel, message, fields) }

// Error logs an error message.
func (l *Logger) Error(message string, fields ...Field) { l.log(ErrorLevel, message, fields) }

// Fatal logs a fatal message and exits the process.
func (l *Logger) Fatal(message string, fields ...Field) { l.log(FatalLevel, message, fields) }

func (l *Logger) log(level Level, message string, fields []Field) {
	if l == nil {
		L().log(level, message, fields)
		return
	}
	if level < l.level {
		return
	}
	line := l.encode(level, message, mergeFields(l.fields, fields))
	l.out.write(line)
	if level == FatalLevel {
		_ = l.out.sync()
		os.Exit(1)
	}
}

// encode renders the reserved keys first, then the fields in order. A value
// that cannot be marshalled is logged through its %v form.
func (l *Logger) encode(level Level, message string, fields []Field) []byte {
	var buf bytes.Buffer
	buf.WriteByte('{')
	writeKV(&buf, "timestamp", l.now().UTC().Format(time.RFC3339Nano))
	buf.WriteByte(',')
	writeKV(&buf, "level", level.String())
	buf.WriteByte(',')
	writeKV(&buf, "message", message)
	for _, f := range fields {
		switch f.Key {
		case "timestamp", "level", "message":
			continue
		}
		buf.WriteByte(',')
		writeKV(&buf, f.Key, f.Value)
	}
	buf.WriteString("}\n")
	return buf.Bytes()
}

func writeKV(buf *bytes.Buffer, key string, value any) {
	k, _ := json.Marshal(key)
	buf.Write(k)
	buf.WriteByte(':')
	v, err := json.Marshal(value)
	if err != nil {
		v, _ = json.Marshal(fmt.Sprintf("%v", value))
	}
	buf.Write(v)
}

// ContextWithLogger stores a logger in the provided context.
func ContextWithLogger(ctx context.Context, logger *Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerContextKey, logger)
}

// LoggerFromContext retrieves a logger from context or falls back to the global logger.
func LoggerFromContext(ctx context.Context) *Logger {
	if ctx == nil {
		return L()
	}
	if logger, ok := ctx.Value(loggerContextKey).(*Logger); ok && logger != nil {
		return logger
	}
	return L()
}

// ContextWithDeliveryID stores a delivery identifier in context.
func ContextWithDeliveryID(ctx context.Context, deliveryID uint64) context.Context {
	if deliveryID == 0 {
		return ctx
	}
	return context.WithValue(ctx, deliveryContextKey, deliveryID)
}

// DeliveryIDFromContext extracts a delivery identifier from context.
func DeliveryIDFromContext(ctx context.Context) uint64 {
	if ctx == nil {
		return 0
	}
	id, _ := ctx.Value(deliveryContextKey).(uint64)
	return id
}

// GenerateSessionID returns 8 random bytes as hex, falling back to the clock.
func GenerateSessionID() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err == nil {
		return hex.EncodeToString(buf[:])
	}
	return fmt.Sprintf("%x", time.Now().UnixNano())
}

// WithDelivery derives a logger tagged with the delivery and stores both the
// logger and the id in the returned context.
func WithDelivery(ctx context.Context, base *Logger, deliveryID uint64) (context.Context, *Logger) {
	if ctx == nil {
		ctx = context.Background()
	}
	if base == nil {
		base = L()
	}
	derived := base.With(Uint64(DeliveryIDField, deliveryID))
	ctx = ContextWithDeliveryID(ctx, deliveryID)
	return ContextWithLogger(ctx, derived), derived
}
