package dbscope

import (
	"database/sql"
	"errors"
)

// ErrNilRegistry is returned when a nil registry is supplied via WithRegistry.
var ErrNilRegistry = errors.New("nil ambient registry supplied")

// Option defines a functional option for configuring a Scope at construction.
type Option func(*Scope) error

// WithJoinMode sets the requested join mode. The default is JoinExisting.
func WithJoinMode(mode JoinMode) Option {
	return func(s *Scope) error {
		s.joinMode = mode
		return nil
	}
}

// WithReadOnly marks the scope read-only: its collection auto-commits on disposal
// and handles are configured for read-only tracking.
func WithReadOnly() Option {
	return func(s *Scope) error {
		s.readOnly = true
		return nil
	}
}

// WithIsolationLevel requests transactional isolation for every handle of the unit of
// work. Specifying an isolation level forces CreateNew regardless of the join mode.
func WithIsolationLevel(level sql.IsolationLevel) Option {
	return func(s *Scope) error {
		s.isolation = &level
		return nil
	}
}

// WithFactory sets the resource factory used to construct handles. Without a factory,
// handles are built through constructors registered with Register.
func WithFactory(factory Factory) Option {
	return func(s *Scope) error {
		s.factory = factory
		return nil
	}
}

// WithRegistry overrides the process-wide ambient registry, for test isolation.
func WithRegistry(registry *AmbientRegistry) Option {
	return func(s *Scope) error {
		if registry == nil {
			return ErrNilRegistry
		}

		s.registry = registry

		return nil
	}
}

// WithLogger sets the logger receiving operational messages, cleanup warnings,
// and disposal-path errors.
func WithLogger(logger Logger) Option {
	return func(s *Scope) error {
		s.obs.logger = logger
		return nil
	}
}

// WithContextualLogger sets the context-aware logger. When configured it is preferred
// over the plain logger for operational messages, enabling trace correlation.
func WithContextualLogger(logger ContextualLogger) Option {
	return func(s *Scope) error {
		s.obs.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector receiving commit durations, change counts,
// and completion failure counters.
func WithMetrics(collector MetricsCollector) Option {
	return func(s *Scope) error {
		s.obs.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector receiving spans for commit operations.
func WithTracing(collector TracingCollector) Option {
	return func(s *Scope) error {
		s.obs.tracingCollector = collector
		return nil
	}
}
