package dbscope

import (
	"context"
	"database/sql"
)

// ScopeFactory creates scopes with a common preset configuration (resource factory,
// registry, observability), so that application code only states the join mode.
type ScopeFactory struct {
	presets []Option
}

// NewScopeFactory creates a factory applying the given options to every scope it creates.
func NewScopeFactory(presets ...Option) *ScopeFactory {
	return &ScopeFactory{presets: presets}
}

// options combines the presets with per-call options into a fresh slice.
func (f *ScopeFactory) options(extra ...Option) []Option {
	combined := make([]Option, 0, len(f.presets)+len(extra))
	combined = append(combined, f.presets...)
	combined = append(combined, extra...)

	return combined
}

// Create creates a scope with the given join mode.
func (f *ScopeFactory) Create(ctx context.Context, mode JoinMode) (*Scope, context.Context, error) {
	return New(ctx, f.options(WithJoinMode(mode))...)
}

// CreateWithIsolation creates a scope whose handles run under transactions at the given
// isolation level. The scope is forced to CreateNew.
func (f *ScopeFactory) CreateWithIsolation(ctx context.Context, level sql.IsolationLevel) (*Scope, context.Context, error) {
	return New(ctx, f.options(WithIsolationLevel(level))...)
}

// CreateReadOnly creates a read-only scope with the given join mode. Disposing it
// without completion behaves identically to completing it first.
func (f *ScopeFactory) CreateReadOnly(ctx context.Context, mode JoinMode) (*Scope, context.Context, error) {
	return New(ctx, f.options(WithJoinMode(mode), WithReadOnly())...)
}

// SuppressAmbient creates a scope that hides the ambient scope until it is closed.
// The returned context carries no ambient scope and is safe to hand to forked
// concurrent work.
func (f *ScopeFactory) SuppressAmbient(ctx context.Context) (*Scope, context.Context, error) {
	return New(ctx, f.options(WithJoinMode(Suppress))...)
}
