package dbscope

import (
	"context"
	"math"
	"time"
)

// Logger interface for operational logging, warnings, and error reporting.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MetricsCollector interface for collecting commit/rollback performance and operational metrics.
type MetricsCollector interface {
	RecordDuration(metric string, duration time.Duration, labels map[string]string)
	IncrementCounter(metric string, labels map[string]string)
	RecordValue(metric string, value float64, labels map[string]string)
}

// ContextualMetricsCollector extends MetricsCollector with context-aware methods for better
// tracing integration. This interface is optional - the commit path uses the context-aware
// methods when available and falls back to the base MetricsCollector interface otherwise.
type ContextualMetricsCollector interface {
	MetricsCollector
	RecordDurationContext(ctx context.Context, metric string, duration time.Duration, labels map[string]string)
	IncrementCounterContext(ctx context.Context, metric string, labels map[string]string)
	RecordValueContext(ctx context.Context, metric string, value float64, labels map[string]string)
}

// SpanContext represents an active tracing span that can be finished and updated with attributes.
type SpanContext interface {
	SetStatus(status string)
	AddAttribute(key, value string)
}

// TracingCollector interface for collecting distributed tracing information from scope
// operations. It is dependency-free so that any tracing backend (OpenTelemetry, Jaeger,
// Zipkin, etc.) can be plugged in by implementing this interface.
type TracingCollector interface {
	StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, SpanContext)
	FinishSpan(spanCtx SpanContext, status string, attrs map[string]string)
}

// ContextualLogger interface for context-aware logging with automatic trace correlation.
// Like MetricsCollector and TracingCollector it is dependency-free; the oteladapters
// module provides an OpenTelemetry-backed implementation.
type ContextualLogger interface {
	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
}

// observers bundles the optional observability collaborators of a scope chain.
// All fields may be nil; every recording helper checks before use.
type observers struct {
	logger           Logger
	contextualLogger ContextualLogger
	metricsCollector MetricsCollector
	tracingCollector TracingCollector
}

// logWarn logs at warn level if a logger is configured.
func (o observers) logWarn(msg string, args ...any) {
	if o.logger != nil {
		o.logger.Warn(msg, args...)
	}
}

// logError logs error information at the error level if a logger is configured.
func (o observers) logError(msg string, err error, args ...any) {
	if o.logger != nil {
		allArgs := []any{logAttrError, err.Error()}
		allArgs = append(allArgs, args...)
		o.logger.Error(msg, allArgs...)
	}
}

// logOperationContext logs operational information, preferring the contextual logger.
func (o observers) logOperationContext(ctx context.Context, msg string, args ...any) {
	if o.contextualLogger != nil {
		o.contextualLogger.InfoContext(ctx, msg, args...)
		return
	}

	if o.logger != nil {
		o.logger.Info(msg, args...)
	}
}

// recordDurationContext records a duration metric with context if the collector supports it.
func (o observers) recordDurationContext(
	ctx context.Context,
	metricName string,
	duration time.Duration,
	operation, status string,
) {
	if o.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		spanAttrOperation: operation,
		labelStatus:       status,
	}

	if contextualCollector, ok := o.metricsCollector.(ContextualMetricsCollector); ok {
		contextualCollector.RecordDurationContext(ctx, metricName, duration, labels)
	} else {
		o.metricsCollector.RecordDuration(metricName, duration, labels)
	}
}

// recordErrorContext records an error counter with context if the collector supports it.
func (o observers) recordErrorContext(ctx context.Context, operation, errorType string) {
	if o.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		spanAttrOperation: operation,
		labelStatus:       statusError,
		spanAttrErrorType: errorType,
	}

	if contextualCollector, ok := o.metricsCollector.(ContextualMetricsCollector); ok {
		contextualCollector.IncrementCounterContext(ctx, metricCompletionErrors, labels)
	} else {
		o.metricsCollector.IncrementCounter(metricCompletionErrors, labels)
	}
}

// startSpan starts a tracing span if a tracing collector is configured.
func (o observers) startSpan(
	ctx context.Context,
	name string,
	attrs map[string]string,
) (context.Context, SpanContext) {
	if o.tracingCollector != nil {
		return o.tracingCollector.StartSpan(ctx, name, attrs)
	}

	return ctx, nil
}

// finishSpan finishes a tracing span if one was started.
func (o observers) finishSpan(spanCtx SpanContext, status string, attrs map[string]string) {
	if o.tracingCollector != nil && spanCtx != nil {
		o.tracingCollector.FinishSpan(spanCtx, status, attrs)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
