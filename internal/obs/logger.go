// Package obs carries the ambient observability stack: structured
// logging, graceful shutdown, and metrics shared by cmd/scoped and the
// internal packages it wires together.
package obs

import (
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel mirrors the severities a caller can select at construction
// time, independent of zap's own level type so callers never need to
// import zap directly.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	case FATAL:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger is structured, component-scoped logging backed by zap.
type Logger struct {
	z         *zap.Logger
	component string
}

// LoggerConfig configures a logger instance.
type LoggerConfig struct {
	Level     LogLevel
	Component string
	Colorize  bool
}

// NewLogger creates a new logger with the given configuration.
func NewLogger(config LoggerConfig) *Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if config.Colorize {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(os.Stdout),
		config.Level.zapLevel(),
	)

	z := zap.New(core)
	if config.Component != "" {
		z = z.With(zap.String("component", config.Component))
	}

	return &Logger{z: z, component: config.Component}
}

// DefaultLogger creates a logger with sensible defaults.
func DefaultLogger(component string) *Logger {
	return NewLogger(LoggerConfig{Level: INFO, Component: component, Colorize: true})
}

// With returns a new logger with the given fields bound to every
// subsequent call.
func (l *Logger) With(fields ...Field) *Logger {
	return &Logger{z: l.z.With(toZapFields(fields)...), component: l.component}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.z.Debug(msg, toZapFields(fields)...) }
func (l *Logger) Info(msg string, fields ...Field)  { l.z.Info(msg, toZapFields(fields)...) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, toZapFields(fields)...) }
func (l *Logger) Error(msg string, fields ...Field) { l.z.Error(msg, toZapFields(fields)...) }
func (l *Logger) Fatal(msg string, fields ...Field) { l.z.Fatal(msg, toZapFields(fields)...) }

// Field is a key-value pair for structured logging, kept as our own type
// so callers of this package never import zap directly.
type Field struct {
	Key   string
	Value any
}

func toZapFields(fields []Field) []zap.Field {
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		out[i] = zap.Any(f.Key, f.Value)
	}
	return out
}

func String(key, value string) Field          { return Field{Key: key, Value: value} }
func Int(key string, value int) Field         { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field     { return Field{Key: key, Value: value} }
func Uint64(key string, value uint64) Field   { return Field{Key: key, Value: value} }
func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field       { return Field{Key: key, Value: value} }
func Err(err error) Field                     { return Field{Key: "error", Value: err} }
func Any(key string, value any) Field         { return Field{Key: key, Value: value} }
func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value} }

// Global logger instance, mirroring the package-level convenience
// functions callers reach for before they have a component-scoped
// logger handy.
var globalLogger = DefaultLogger("scoped")

func SetGlobalLogger(logger *Logger) { globalLogger = logger }

func Debug(msg string, fields ...Field) { globalLogger.Debug(msg, fields...) }
func Info(msg string, fields ...Field)  { globalLogger.Info(msg, fields...) }
func Warn(msg string, fields ...Field)  { globalLogger.Warn(msg, fields...) }
func Error(msg string, fields ...Field) { globalLogger.Error(msg, fields...) }
func Fatal(msg string, fields ...Field) { globalLogger.Fatal(msg, fields...) }
