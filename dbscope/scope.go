package dbscope

import (
	"context"
	"database/sql"
)

// JoinMode decides whether a new scope shares an existing ambient scope's resources,
// always creates its own, or temporarily hides the ambient scope.
type JoinMode int

const (
	// JoinExisting joins the ambient scope's resource collection when a compatible
	// ambient scope exists, and creates a new one otherwise. This is the default.
	JoinExisting JoinMode = iota

	// CreateNew always creates a private resource collection, ignoring any ambient scope.
	CreateNew

	// Suppress hides the ambient scope until the new scope is closed and creates
	// no resource collection at all.
	Suppress
)

// String returns the join mode name for diagnostics.
func (m JoinMode) String() string {
	switch m {
	case JoinExisting:
		return "JoinExisting"
	case CreateNew:
		return "CreateNew"
	case Suppress:
		return "Suppress"
	default:
		return "Unknown"
	}
}

// Scope is the ambient unit-of-work scope exposed to callers. It decides at construction
// whether to join an existing ambient scope, start a new one with its own
// ResourceCollection, or suppress the ambient scope entirely, and delegates completion
// to its collection and propagation to the ambient registry.
//
// A scope moves through Active -> Completed -> Disposed, with a parallel
// Suppressing -> Disposed branch for JoinMode Suppress.
type Scope struct {
	identity    Identity
	parent      *Scope
	joinMode    JoinMode
	nested      bool
	readOnly    bool
	suppressing bool
	completed   bool
	disposed    bool
	isolation   *sql.IsolationLevel
	factory     Factory
	resources   *ResourceCollection
	registry    *AmbientRegistry
	obs         observers
}

// New constructs a scope within the logical flow represented by ctx and returns it
// together with a derived context that carries the scope as ambient. All code running
// with the derived context (including code resumed after awaited operations) sees the
// scope through the locator without it being passed explicitly.
//
// An explicit isolation level forces CreateNew regardless of the requested join mode.
// Joining follows the stricter-or-equal policy: a read-only scope may join a read-write
// parent, while a read-write scope under a read-only parent fails with
// ErrJoinPolicyViolation.
func New(ctx context.Context, options ...Option) (*Scope, context.Context, error) {
	if ctx == nil {
		return nil, nil, ErrNilContext
	}

	s := &Scope{
		identity: newIdentity(),
		joinMode: JoinExisting,
		registry: defaultRegistry,
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, nil, err
		}
	}

	if s.isolation != nil {
		// Transactional isolation always gets a private collection.
		s.joinMode = CreateNew
	}

	if s.joinMode == Suppress {
		return s.beginSuppressing(ctx)
	}

	parent, resolveErr := s.resolveParent(ctx)
	if resolveErr != nil {
		return nil, nil, resolveErr
	}

	s.parent = parent

	if parent != nil && s.joinMode == JoinExisting {
		if parent.readOnly && !s.readOnly {
			return nil, nil, ErrJoinPolicyViolation
		}

		s.nested = true
		s.resources = parent.resources
	} else {
		s.resources = newResourceCollection(s.readOnly, s.isolation, s.factory, s.obs)
	}

	return s, s.registry.Publish(ctx, s), nil
}

// beginSuppressing remembers the currently ambient scope and derives a context in
// which no ambient scope is visible.
func (s *Scope) beginSuppressing(ctx context.Context) (*Scope, context.Context, error) {
	s.suppressing = true

	parent, resolveErr := s.resolveParent(ctx)
	if resolveErr != nil {
		return nil, nil, resolveErr
	}

	s.parent = parent

	return s, SuppressAmbient(ctx), nil
}

// resolveParent resolves the ambient identity of ctx to its scope instance.
// An ambient identity without a live instance is a fatal propagation bug.
func (s *Scope) resolveParent(ctx context.Context) (*Scope, error) {
	identity, ok := Current(ctx)
	if !ok {
		return nil, nil
	}

	return s.registry.Lookup(identity)
}

// Complete expresses commit intent. See CompleteContext.
func (s *Scope) Complete() (ChangeCountInt64, error) {
	return s.CompleteContext(context.Background())
}

// CompleteContext expresses commit intent for the unit of work. Only the outermost
// scope in a join chain actually commits its collection; nested and suppressing scopes
// mark themselves completed and report zero changes, deferring persistence to the
// eventual outermost scope.
//
// Cancellation of ctx stops further per-handle commits once signaled while letting the
// handle that is mid-commit finish.
func (s *Scope) CompleteContext(ctx context.Context) (ChangeCountInt64, error) {
	if s.disposed {
		return 0, ErrUseAfterDispose
	}

	if s.completed {
		return 0, ErrDoubleCompletion
	}

	s.completed = true

	if s.nested || s.resources == nil {
		return 0, nil
	}

	return s.resources.CommitContext(ctx)
}

// Close disposes the scope. It is idempotent: repeated calls return nil.
//
// ctx must be the context returned by New; disposing a scope that is not the current
// ambient scope of ctx fails with ErrDisposalOrderViolation, which means scopes were
// disposed out of stack order within one flow. A nested scope whose parent is already
// disposed fails with ErrCrossFlowLeak: the ambient scope leaked into a concurrently
// scheduled flow that was forked without suppressing it first.
//
// Closing the outermost scope disposes its collection, which auto-commits a read-only
// unit of work and auto-rolls-back an uncompleted read-write one. The caller's outer
// context still carries the parent scope, so the parent becomes ambient again simply
// by returning to it.
func (s *Scope) Close(ctx context.Context) error {
	if s.disposed {
		return nil
	}

	if s.suppressing {
		s.disposed = true
		return nil
	}

	if !s.nested && s.resources != nil {
		s.resources.Dispose()
	}

	if identity, ok := Current(ctx); !ok || identity != s.identity {
		return newDisposalOrderError(s)
	}

	s.registry.Remove(s.identity)

	if s.nested && s.parent != nil && s.parent.disposed {
		s.disposed = true
		return newCrossFlowLeakError(s)
	}

	s.disposed = true

	return nil
}

// Identity returns the scope's opaque propagation token.
func (s *Scope) Identity() Identity {
	return s.identity
}

// Parent returns the scope that was ambient at construction time, or nil.
func (s *Scope) Parent() *Scope {
	return s.parent
}

// JoinMode returns the effective join mode of the scope.
func (s *Scope) JoinMode() JoinMode {
	return s.joinMode
}

// Nested reports whether the scope joined its parent's resource collection.
func (s *Scope) Nested() bool {
	return s.nested
}

// ReadOnly reports whether the scope runs read-only.
func (s *Scope) ReadOnly() bool {
	return s.readOnly
}

// Suppressing reports whether the scope only hides the ambient scope.
func (s *Scope) Suppressing() bool {
	return s.suppressing
}

// Completed reports whether Complete was called on the scope.
func (s *Scope) Completed() bool {
	return s.completed
}

// Disposed reports whether the scope was closed.
func (s *Scope) Disposed() bool {
	return s.disposed
}

// Resources returns the scope's resource collection, shared by reference with the
// parent for nested scopes and nil for suppressing scopes.
func (s *Scope) Resources() *ResourceCollection {
	return s.resources
}
