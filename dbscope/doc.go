// Package dbscope treats a business transaction as a single ambient scope that lazily
// creates, shares, and finally commits or discards a set of unit-of-work resource
// handles (one per resource type), without the caller threading those handles through
// every function call.
//
// The ambient scope travels inside a context.Context, so it follows all continuations
// of one logical flow and never leaks into goroutines that were not handed the scope's
// context. Scopes nest: a scope created with JoinExisting under a compatible ambient
// scope shares the parent's ResourceCollection, and only the outermost scope of such a
// chain actually commits or rolls back.
//
// Key types:
//   - Scope: the orchestrator; decides at construction to join, create, or suppress
//   - ResourceCollection: owns the handles and the commit/rollback/dispose protocol
//   - AmbientRegistry: resolves ambient identities to live scopes, weakly held
//   - AmbientLocator: fetches the ambient scope's handle of a resource type
//   - ScopeFactory: facade with common option presets
//
// Common usage pattern:
//
//	factory := dbscope.NewScopeFactory(dbscope.WithFactory(resourceFactory))
//	locator := dbscope.NewAmbientLocator()
//
//	scope, sctx, err := factory.Create(ctx, dbscope.JoinExisting)
//	if err != nil {
//		// handle error
//	}
//	defer scope.Close(sctx)
//
//	handle, err := locator.Get(sctx, "orders")
//	// ... record changes on the handle ...
//
//	changes, err := scope.CompleteContext(sctx)
//
// Forking concurrent work from within a scope requires a context without the ambient
// scope, obtained via SuppressAmbient or a Suppress scope; a ResourceCollection is
// exclusively owned by one logical flow and carries no locking.
package dbscope
