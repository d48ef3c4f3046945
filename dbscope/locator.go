package dbscope

import (
	"context"
	"fmt"
)

// AmbientLocator looks up resource handles of the ambient scope, so that repository-style
// code can obtain its unit-of-work handle without it being threaded through every call.
type AmbientLocator struct {
	registry *AmbientRegistry
}

// NewAmbientLocator creates a locator against the process-wide ambient registry.
func NewAmbientLocator() *AmbientLocator {
	return &AmbientLocator{registry: defaultRegistry}
}

// NewAmbientLocatorWithRegistry creates a locator against a specific registry,
// for test isolation.
func NewAmbientLocatorWithRegistry(registry *AmbientRegistry) *AmbientLocator {
	return &AmbientLocator{registry: registry}
}

// Get returns the ambient scope's handle of the requested resource type, creating it
// lazily on first use. Fails with ErrNoAmbientScope when ctx carries no ambient scope,
// which is a caller error: the calling code runs outside any scope (or inside a
// suppressed block).
func (l *AmbientLocator) Get(ctx context.Context, resourceType Type) (Handle, error) {
	identity, ok := Current(ctx)
	if !ok {
		return nil, ErrNoAmbientScope
	}

	scope, lookupErr := l.registry.Lookup(identity)
	if lookupErr != nil {
		return nil, lookupErr
	}

	if scope.disposed {
		return nil, ErrUseAfterDispose
	}

	return scope.resources.Get(ctx, resourceType)
}

// AmbientAs returns the ambient handle of the requested resource type asserted to a
// concrete handle implementation.
func AmbientAs[T Handle](ctx context.Context, locator *AmbientLocator, resourceType Type) (T, error) {
	var zero T

	handle, err := locator.Get(ctx, resourceType)
	if err != nil {
		return zero, err
	}

	typed, ok := handle.(T)
	if !ok {
		return zero, fmt.Errorf("%w: resource type %q holds %T", ErrHandleTypeMismatch, resourceType, handle)
	}

	return typed, nil
}
