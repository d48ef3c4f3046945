package dbscope

import (
	"errors"
)

var (
	// ErrNilContext is returned when a nil context is supplied to a constructor.
	ErrNilContext = errors.New("nil context supplied")

	// ErrUseAfterDispose is returned when an operation is invoked on an already-disposed
	// Scope or ResourceCollection.
	ErrUseAfterDispose = errors.New("instance was already disposed")

	// ErrDoubleCompletion is returned when Complete, Commit or Rollback is invoked a second time.
	ErrDoubleCompletion = errors.New("completion was already performed")

	// ErrJoinPolicyViolation is returned when a read-write scope attempts to join a read-only parent.
	ErrJoinPolicyViolation = errors.New("a read-write scope must not join a read-only parent scope")

	// ErrDisposalOrderViolation is returned when a scope is disposed while it is not the
	// current ambient scope, which means scopes were disposed out of creation order.
	ErrDisposalOrderViolation = errors.New("scope disposed out of creation order")

	// ErrCrossFlowLeak is returned when a nested scope finds its parent already disposed at
	// disposal time, which means the ambient scope leaked into a concurrently scheduled flow.
	ErrCrossFlowLeak = errors.New("parent of nested scope was already disposed")

	// ErrNoAmbientScope is returned by the locator when no scope is currently ambient.
	ErrNoAmbientScope = errors.New("no ambient scope is active")

	// ErrCommitFailed is returned when one or more handles failed to persist or commit;
	// every per-handle failure is joined into the returned error.
	ErrCommitFailed = errors.New("committing the resource collection failed")

	// ErrRollbackFailed is returned when one or more open transactions failed to roll back.
	ErrRollbackFailed = errors.New("rolling back the resource collection failed")

	// ErrScopeNotRegistered is returned when an ambient identity cannot be resolved to a live
	// Scope instance. For an identity obtained from the current context this is a fatal
	// invariant violation, never a normal "not found".
	ErrScopeNotRegistered = errors.New("ambient identity is not registered to a live scope")

	// ErrOpeningTransactionFailed is returned when a transaction could not be opened on a
	// freshly created resource handle.
	ErrOpeningTransactionFailed = errors.New("opening a transaction on the resource handle failed")

	// ErrNoConstructor is returned when a resource type has neither a factory nor a
	// registered default constructor.
	ErrNoConstructor = errors.New("no factory or registered constructor for resource type")

	// ErrHandleTypeMismatch is returned when an ambient handle does not have the requested type.
	ErrHandleTypeMismatch = errors.New("ambient handle does not have the requested type")
)

// ChangeCountInt64 is a type alias for int64, representing the number of persisted units
// reported by resource handles during a save operation.
type ChangeCountInt64 = int64
