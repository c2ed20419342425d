// Package logger is the process-wide structured logger. It emits JSON via
// log/slog and stamps every record with the active OpenTelemetry trace and
// span IDs so log lines can be correlated with exported spans.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	enginetrace "auto-trading-engine/internal/trace"
)

var (
	globalLogger    *slog.Logger
	logLevel        slog.Level
	detailedLogging bool
)

// Config holds logging configuration.
type Config struct {
	Level           string // DEBUG, INFO, WARN, ERROR
	Format          string // json or text
	DetailedLogging bool
}

// Init initializes the global logger from environment variables.
func Init() error {
	return InitWithConfig(Config{
		Level:           getEnvOrDefault("LOG_LEVEL", "INFO"),
		Format:          getEnvOrDefault("LOG_FORMAT", "json"),
		DetailedLogging: getEnvOrDefault("LOG_DETAILED", "false") == "true",
	})
}

// InitWithConfig initializes the logger with an explicit configuration.
func InitWithConfig(cfg Config) error {
	logLevel = parseLogLevel(cfg.Level)
	detailedLogging = cfg.DetailedLogging

	opts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	globalLogger = slog.New(handler)
	slog.SetDefault(globalLogger)
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func traceAttrs(ctx context.Context) []any {
	traceID, spanID, ok := enginetrace.GetTraceFields(ctx)
	if !ok {
		return nil
	}
	return []any{"trace_id", traceID, "span_id", spanID}
}

func logWithTrace(ctx context.Context, level slog.Level, msg string, args ...any) {
	if globalLogger == nil {
		globalLogger = slog.Default()
	}
	if ta := traceAttrs(ctx); ta != nil {
		args = append(ta, args...)
	}
	globalLogger.Log(ctx, level, msg, args...)
}

// Debug logs a debug message. Suppressed unless detailed logging is on.
func Debug(ctx context.Context, msg string, args ...any) {
	if !detailedLogging {
		return
	}
	logWithTrace(ctx, slog.LevelDebug, msg, args...)
}

// Info logs an info message.
func Info(ctx context.Context, msg string, args ...any) {
	logWithTrace(ctx, slog.LevelInfo, msg, args...)
}

// Warn logs a warning message.
func Warn(ctx context.Context, msg string, args ...any) {
	logWithTrace(ctx, slog.LevelWarn, msg, args...)
}

// Error logs an error message.
func Error(ctx context.Context, msg string, args ...any) {
	logWithTrace(ctx, slog.LevelError, msg, args...)
}

// ErrorWithErr logs an error message with an error object and records the
// error on the active span when one exists.
func ErrorWithErr(ctx context.Context, msg string, err error, args ...any) {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	allArgs := append([]any{"error", err}, args...)
	logWithTrace(ctx, slog.LevelError, msg, allArgs...)
}

// Signal logs a generated trading signal (always at info level).
func Signal(ctx context.Context, instrument, strategy, direction string, confidence float64, args ...any) {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		span.AddEvent("trading_signal", trace.WithAttributes(
			attribute.String("instrument", instrument),
			attribute.String("strategy", strategy),
			attribute.String("direction", direction),
			attribute.Float64("confidence", confidence),
		))
	}
	allArgs := append([]any{
		"type", "SIGNAL",
		"instrument", instrument,
		"strategy", strategy,
		"direction", direction,
		"confidence", confidence,
	}, args...)
	logWithTrace(ctx, slog.LevelInfo, "Trading signal", allArgs...)
}

// Trade logs an order execution (always at info level).
func Trade(ctx context.Context, instrument, side string, qty, price float64, orderID string, args ...any) {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		span.AddEvent("trade_executed", trace.WithAttributes(
			attribute.String("instrument", instrument),
			attribute.String("side", side),
			attribute.Float64("quantity", qty),
			attribute.Float64("price", price),
			attribute.String("order_id", orderID),
		))
	}
	allArgs := append([]any{
		"type", "TRADE",
		"instrument", instrument,
		"side", side,
		"quantity", qty,
		"price", price,
		"order_id", orderID,
	}, args...)
	logWithTrace(ctx, slog.LevelInfo, "Trade executed", allArgs...)
}

// Risk logs a risk-management event such as a circuit-breaker trip.
func Risk(ctx context.Context, instrument, eventType string, args ...any) {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		span.AddEvent("risk_event", trace.WithAttributes(
			attribute.String("instrument", instrument),
			attribute.String("event_type", eventType),
		))
	}
	allArgs := append([]any{
		"type", "RISK",
		"instrument", instrument,
		"event_type", eventType,
	}, args...)
	logWithTrace(ctx, slog.LevelWarn, "Risk event", allArgs...)
}

// IsDebugEnabled reports whether detailed logging is enabled.
func IsDebugEnabled() bool {
	return detailedLogging
}
