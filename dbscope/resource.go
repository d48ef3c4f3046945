package dbscope

import (
	"context"
	"database/sql"
	"sync"
)

// Type identifies a resource type within a ResourceCollection.
// At most one handle per Type exists for the lifetime of a collection.
type Type string

// Handle is the stateful unit-of-work object whose lifecycle (creation, persistence,
// disposal) this package coordinates. Its internal behavior - change tracking, query
// execution, data materialization - is opaque to the scope machinery.
type Handle interface {
	// SetReadOnly configures the handle for read-only or read-write change tracking.
	// It is called exactly once, right after the handle was created.
	SetReadOnly(readOnly bool)

	// Save persists all pending changes and reports the number of persisted units.
	Save(ctx context.Context) (ChangeCountInt64, error)

	// Begin opens a transaction on the handle at the requested isolation level.
	Begin(ctx context.Context, level sql.IsolationLevel) (Tx, error)

	// Close releases the handle. Unsaved changes are discarded.
	Close() error
}

// Tx is the transaction primitive associated with a resource handle.
// Either Commit or Rollback finalizes the transaction; afterwards it must not be reused.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Factory constructs resource handles on demand.
type Factory interface {
	Create(resourceType Type) (Handle, error)
}

// FactoryFunc adapts a plain function to the Factory interface.
type FactoryFunc func(resourceType Type) (Handle, error)

// Create calls the wrapped function.
func (f FactoryFunc) Create(resourceType Type) (Handle, error) {
	return f(resourceType)
}

var (
	constructorsMu sync.RWMutex
	constructors   = make(map[Type]func() (Handle, error))
)

// Register makes a default constructor available for a resource type, analogous to
// database/sql driver registration. It is used by collections that were built without
// a Factory. Register panics when called twice for the same type.
func Register(resourceType Type, constructor func() (Handle, error)) {
	constructorsMu.Lock()
	defer constructorsMu.Unlock()

	if constructor == nil {
		panic("dbscope: Register called with nil constructor")
	}

	if _, duplicate := constructors[resourceType]; duplicate {
		panic("dbscope: Register called twice for resource type " + string(resourceType))
	}

	constructors[resourceType] = constructor
}

// newDefaultHandle constructs a handle through the registered default constructor.
func newDefaultHandle(resourceType Type) (Handle, error) {
	constructorsMu.RLock()
	constructor, ok := constructors[resourceType]
	constructorsMu.RUnlock()

	if !ok {
		return nil, ErrNoConstructor
	}

	return constructor()
}
