package testdoubles

import (
	"context"
	"sync"
	"time"

	"github.com/yegor-mialyk/DbContextScope/dbscope"
)

// SpyLogRecord represents a captured log call.
type SpyLogRecord struct {
	Level   string
	Message string
	Args    []any
}

// LoggerSpy captures log calls for testing. It implements both dbscope.Logger and
// dbscope.ContextualLogger.
type LoggerSpy struct {
	mu      sync.Mutex
	records []SpyLogRecord
}

// NewLoggerSpy creates a new LoggerSpy.
func NewLoggerSpy() *LoggerSpy {
	return &LoggerSpy{}
}

func (s *LoggerSpy) capture(level, msg string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, SpyLogRecord{Level: level, Message: msg, Args: args})
}

// Debug implements dbscope.Logger.
func (s *LoggerSpy) Debug(msg string, args ...any) { s.capture("debug", msg, args...) }

// Info implements dbscope.Logger.
func (s *LoggerSpy) Info(msg string, args ...any) { s.capture("info", msg, args...) }

// Warn implements dbscope.Logger.
func (s *LoggerSpy) Warn(msg string, args ...any) { s.capture("warn", msg, args...) }

// Error implements dbscope.Logger.
func (s *LoggerSpy) Error(msg string, args ...any) { s.capture("error", msg, args...) }

// DebugContext implements dbscope.ContextualLogger.
func (s *LoggerSpy) DebugContext(_ context.Context, msg string, args ...any) {
	s.capture("debug", msg, args...)
}

// InfoContext implements dbscope.ContextualLogger.
func (s *LoggerSpy) InfoContext(_ context.Context, msg string, args ...any) {
	s.capture("info", msg, args...)
}

// WarnContext implements dbscope.ContextualLogger.
func (s *LoggerSpy) WarnContext(_ context.Context, msg string, args ...any) {
	s.capture("warn", msg, args...)
}

// ErrorContext implements dbscope.ContextualLogger.
func (s *LoggerSpy) ErrorContext(_ context.Context, msg string, args ...any) {
	s.capture("error", msg, args...)
}

// Records returns a copy of the captured log records.
func (s *LoggerSpy) Records() []SpyLogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SpyLogRecord, len(s.records))
	copy(out, s.records)

	return out
}

// MessagesAtLevel returns the messages captured at the given level.
func (s *LoggerSpy) MessagesAtLevel(level string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for _, record := range s.records {
		if record.Level == level {
			out = append(out, record.Message)
		}
	}

	return out
}

// SpyDurationRecord represents a recorded duration metric call.
type SpyDurationRecord struct {
	Metric   string
	Duration time.Duration
	Labels   map[string]string
}

// SpyCounterRecord represents a recorded counter increment call.
type SpyCounterRecord struct {
	Metric string
	Labels map[string]string
}

// SpyValueRecord represents a recorded value metric call.
type SpyValueRecord struct {
	Metric string
	Value  float64
	Labels map[string]string
}

// MetricsCollectorSpy captures metrics calls for testing. It implements
// dbscope.MetricsCollector.
type MetricsCollectorSpy struct {
	mu        sync.Mutex
	Durations []SpyDurationRecord
	Counters  []SpyCounterRecord
	Values    []SpyValueRecord
}

// NewMetricsCollectorSpy creates a new MetricsCollectorSpy.
func NewMetricsCollectorSpy() *MetricsCollectorSpy {
	return &MetricsCollectorSpy{}
}

// RecordDuration implements dbscope.MetricsCollector.
func (s *MetricsCollectorSpy) RecordDuration(metric string, duration time.Duration, labels map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Durations = append(s.Durations, SpyDurationRecord{Metric: metric, Duration: duration, Labels: copyLabels(labels)})
}

// IncrementCounter implements dbscope.MetricsCollector.
func (s *MetricsCollectorSpy) IncrementCounter(metric string, labels map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Counters = append(s.Counters, SpyCounterRecord{Metric: metric, Labels: copyLabels(labels)})
}

// RecordValue implements dbscope.MetricsCollector.
func (s *MetricsCollectorSpy) RecordValue(metric string, value float64, labels map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Values = append(s.Values, SpyValueRecord{Metric: metric, Value: value, Labels: copyLabels(labels)})
}

func copyLabels(labels map[string]string) map[string]string {
	out := make(map[string]string, len(labels))
	for key, value := range labels {
		out[key] = value
	}

	return out
}

// SpySpan is the span implementation recorded by TracingCollectorSpy.
type SpySpan struct {
	Name       string
	Status     string
	Attributes map[string]string
	Finished   bool
}

// SetStatus implements dbscope.SpanContext.
func (s *SpySpan) SetStatus(status string) {
	s.Status = status
}

// AddAttribute implements dbscope.SpanContext.
func (s *SpySpan) AddAttribute(key, value string) {
	s.Attributes[key] = value
}

// TracingCollectorSpy captures tracing calls for testing. It implements
// dbscope.TracingCollector.
type TracingCollectorSpy struct {
	mu    sync.Mutex
	Spans []*SpySpan
}

// NewTracingCollectorSpy creates a new TracingCollectorSpy.
func NewTracingCollectorSpy() *TracingCollectorSpy {
	return &TracingCollectorSpy{}
}

// StartSpan implements dbscope.TracingCollector.
func (s *TracingCollectorSpy) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, dbscope.SpanContext) {
	s.mu.Lock()
	defer s.mu.Unlock()

	span := &SpySpan{Name: name, Attributes: copyLabels(attrs)}
	s.Spans = append(s.Spans, span)

	return ctx, span
}

// FinishSpan implements dbscope.TracingCollector.
func (s *TracingCollectorSpy) FinishSpan(spanCtx dbscope.SpanContext, status string, attrs map[string]string) {
	span, ok := spanCtx.(*SpySpan)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	span.Status = status
	span.Finished = true
	for key, value := range attrs {
		span.Attributes[key] = value
	}
}
