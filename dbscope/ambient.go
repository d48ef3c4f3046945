package dbscope

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"weak"

	"github.com/google/uuid"
)

// Identity is the opaque token identifying one Scope for ambient propagation.
// It is created once per Scope, never serialized, and only ever compared to itself.
type Identity struct {
	id uuid.UUID
}

func newIdentity() Identity {
	return Identity{id: uuid.New()}
}

// IsZero reports whether the identity is the zero value, which is never assigned to a Scope.
func (i Identity) IsZero() bool {
	return i == Identity{}
}

// String returns a short diagnostic representation of the identity.
func (i Identity) String() string {
	return i.id.String()
}

// ambientKey is the context key under which the ambient identity travels.
type ambientKey struct{}

// Current returns the ambient scope identity for the flow represented by ctx, or false
// when no scope is ambient (or the ambient scope was suppressed).
func Current(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(ambientKey{}).(Identity)
	if !ok || identity.IsZero() {
		return Identity{}, false
	}

	return identity, true
}

// SuppressAmbient derives a context in which no ambient scope is visible, regardless of
// what the parent context carries. Code forking concurrent work from within a scope must
// hand the forked goroutine a suppressed context, since a ResourceCollection is exclusively
// owned by one logical flow.
func SuppressAmbient(ctx context.Context) context.Context {
	return context.WithValue(ctx, ambientKey{}, Identity{})
}

// AmbientRegistry resolves ambient identities to live Scope instances.
//
// The ambient identity itself travels inside a context.Context, so it follows the
// continuations of one logical flow and never leaks into independently scheduled
// goroutines unless their context is explicitly shared. The registry only keeps the
// identity -> instance association, and keeps it weakly: an entry never prevents
// garbage collection of a Scope whose owner dropped all strong references without
// disposing it. A runtime cleanup removes such orphaned entries.
type AmbientRegistry struct {
	mu        sync.Mutex
	instances map[Identity]weak.Pointer[Scope]
}

// NewAmbientRegistry creates an empty registry. Production code uses the process-wide
// default registry; separate instances exist for test isolation.
func NewAmbientRegistry() *AmbientRegistry {
	return &AmbientRegistry{
		instances: make(map[Identity]weak.Pointer[Scope]),
	}
}

// defaultRegistry is the process-wide registry used by all scopes unless overridden.
var defaultRegistry = NewAmbientRegistry()

// Publish makes the scope's identity the ambient value of the returned context and
// registers the identity -> instance association. Publishing an identity that is
// already current returns ctx unchanged.
func (r *AmbientRegistry) Publish(ctx context.Context, scope *Scope) context.Context {
	r.mu.Lock()
	_, known := r.instances[scope.identity]
	r.instances[scope.identity] = weak.Make(scope)
	r.mu.Unlock()

	if !known {
		// Safety net for scopes abandoned without disposal: drop the registry entry
		// once the scope itself becomes unreachable.
		runtime.AddCleanup(scope, r.remove, scope.identity)
	}

	if current, ok := Current(ctx); ok && current == scope.identity {
		return ctx
	}

	return context.WithValue(ctx, ambientKey{}, scope.identity)
}

// Lookup resolves an identity to its live Scope. For an identity obtained from Current
// while the scope is alive this must always succeed; failure is reported as
// ErrScopeNotRegistered and indicates a propagation bug, not a normal "not found".
func (r *AmbientRegistry) Lookup(identity Identity) (*Scope, error) {
	r.mu.Lock()
	pointer, ok := r.instances[identity]
	r.mu.Unlock()

	if !ok {
		return nil, errors.Join(ErrScopeNotRegistered, errors.New("identity "+identity.String()))
	}

	scope := pointer.Value()
	if scope == nil {
		// The scope was garbage collected while its identity was still registered.
		return nil, errors.Join(ErrScopeNotRegistered, errors.New("scope for identity "+identity.String()+" was garbage collected"))
	}

	return scope, nil
}

// Remove drops the identity -> instance association. Called during scope disposal.
func (r *AmbientRegistry) Remove(identity Identity) {
	r.remove(identity)
}

func (r *AmbientRegistry) remove(identity Identity) {
	r.mu.Lock()
	delete(r.instances, identity)
	r.mu.Unlock()
}

// size reports the number of registered associations, for tests.
func (r *AmbientRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.instances)
}
