package logger

import (
	"context"
	"fmt"
	"strings"

	"callmon-api/internal/observability/requestid"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Context keys for extracting values from context
type contextKey string

const (
	loggerContextKey    contextKey = "logger"
	clientContextKey    contextKey = "client"
	rootErrorContextKey contextKey = "root_err"
)

type rootErrorContainer struct {
	err error
}

// Logger wraps zap.Logger to enforce structured logging standards
type Logger struct {
	zap         *zap.Logger
	serviceName string
}

// Field represents a structured log field
type Field = zapcore.Field

// New creates a new Logger instance with required base fields
// level: "debug", "info", "warn", "error"
func New(serviceName string, level string) (*Logger, error) {
	if serviceName == "" {
		return nil, fmt.Errorf("serviceName is required")
	}

	zapLevel := parseLevel(level)

	// JSON output with RFC3339Nano timestamps
	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Encoding:         "json",
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "message",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
			EncodeDuration: zapcore.MillisDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
	}

	z, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build zap logger: %w", err)
	}

	// Add service name as base field on all logs
	z = z.With(zap.String("service", serviceName))

	return &Logger{
		zap:         z,
		serviceName: serviceName,
	}, nil
}

// Module returns a field for the module/component
func Module(name string) Field {
	return zap.String("module", name)
}

// Action returns a field for the action/operation
func Action(name string) Field {
	return zap.String("action", name)
}

// Info logs an info message with mandatory module and action.
// Module and action are enforced by convention, not by panic: a missing
// field degrades to "unknown" instead of crashing the service.
func (l *Logger) Info(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.InfoLevel, msg, fields...)
}

// Warn logs a warning message with mandatory module and action
func (l *Logger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.WarnLevel, msg, fields...)
}

// Error logs an error message with mandatory module and action
func (l *Logger) Error(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.ErrorLevel, msg, fields...)
}

// Debug logs a debug message with mandatory module and action
func (l *Logger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.DebugLevel, msg, fields...)
}

// log is the internal logging implementation
func (l *Logger) log(ctx context.Context, level zapcore.Level, msg string, fields ...Field) {
	contextFields := []Field{}

	if requestID := GetRequestIDFromContext(ctx); requestID != "" {
		contextFields = append(contextFields, zap.String("request_id", requestID))
	}

	if client := GetClientFromContext(ctx); client != "" {
		contextFields = append(contextFields, zap.String("client", client))
	}

	// Sanitize fields to prevent logging secrets or raw phone numbers
	sanitizedFields := sanitizeFields(fields)

	hasModule := false
	hasAction := false
	for _, f := range sanitizedFields {
		if f.Key == "module" {
			hasModule = true
		}
		if f.Key == "action" {
			hasAction = true
		}
	}

	if !hasModule {
		sanitizedFields = append(sanitizedFields, zap.String("module", "unknown"))
	}
	if !hasAction {
		sanitizedFields = append(sanitizedFields, zap.String("action", "unknown"))
	}

	allFields := append(contextFields, sanitizedFields...)

	switch level {
	case zapcore.DebugLevel:
		l.zap.Debug(msg, allFields...)
	case zapcore.InfoLevel:
		l.zap.Info(msg, allFields...)
	case zapcore.WarnLevel:
		l.zap.Warn(msg, allFields...)
	case zapcore.ErrorLevel:
		l.zap.Error(msg, allFields...)
	}
}

// Sync flushes any buffered log entries
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// sanitizeFields removes forbidden keys to prevent leaking secrets.
// Raw phone numbers and customer identities are PII: call sites log the
// opaque call_id or customer_id instead.
func sanitizeFields(fields []Field) []Field {
	forbiddenKeys := map[string]bool{
		"authorization": true,
		"token":         true,
		"password":      true,
		"secret":        true,
		"api_key":       true,
		"bearer":        true,
		"credential":    true,
		// PII that should never be logged directly
		"email":        true,
		"phone":        true,
		"caller":       true,
		"recipient":    true,
		"counterparty": true,
		"first_name":   true,
		"last_name":    true,
		"full_name":    true,
	}

	sanitized := make([]Field, 0, len(fields))
	for _, field := range fields {
		keyLower := strings.ToLower(field.Key)
		if forbiddenKeys[keyLower] {
			sanitized = append(sanitized, zap.String(field.Key, "[REDACTED]"))
		} else {
			sanitized = append(sanitized, field)
		}
	}
	return sanitized
}

// parseLevel converts string level to zapcore.Level
func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Context value getters

func GetRequestIDFromContext(ctx context.Context) string {
	return requestid.GetRequestID(ctx)
}

// GetClientFromContext returns the authenticated client name, if any.
func GetClientFromContext(ctx context.Context) string {
	if v := ctx.Value(clientContextKey); v != nil {
		if client, ok := v.(string); ok {
			return client
		}
	}
	return ""
}

// Context value setters

func SetRequestIDInContext(ctx context.Context, requestID string) context.Context {
	return requestid.SetRequestID(ctx, requestID)
}

// SetClientInContext stores the authenticated client name in context.
func SetClientInContext(ctx context.Context, client string) context.Context {
	return context.WithValue(ctx, clientContextKey, client)
}

// GetLogger retrieves logger from context or returns a new one
func GetLogger(ctx context.Context) *Logger {
	if v := ctx.Value(loggerContextKey); v != nil {
		if logger, ok := v.(*Logger); ok {
			return logger
		}
	}
	// Fallback: return basic logger (should not happen in production)
	logger, _ := New("callmon-api", "info")
	return logger
}

// SetLoggerInContext stores logger in context
func SetLoggerInContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

// InitRootErrorContext initializes context with a pointer to hold the root error
func InitRootErrorContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, rootErrorContextKey, &rootErrorContainer{})
}

// SetRootError sets the root cause error in the context container
func SetRootError(ctx context.Context, err error) {
	if container, ok := ctx.Value(rootErrorContextKey).(*rootErrorContainer); ok {
		container.err = err
	}
}

// GetRootError retrieves the root cause error from the context container
func GetRootError(ctx context.Context) error {
	if container, ok := ctx.Value(rootErrorContextKey).(*rootErrorContainer); ok {
		return container.err
	}
	return nil
}
