package dbscope_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/yegor-mialyk/DbContextScope/dbscope"
)

func Test_ScopeFactory_Applies_Presets_To_EveryScope(t *testing.T) {
	// setup
	registry, factory, presets := newScopeTestEnv()
	scopes := NewScopeFactory(presets...)

	// act
	scope, sctx, err := scopes.Create(context.Background(), JoinExisting)
	require.NoError(t, err, "creating the scope failed")
	defer func() { _ = scope.Close(sctx) }()

	_, err = scope.Resources().Get(sctx, "orders")
	require.NoError(t, err, "creating the handle failed")

	// assert
	assert.Equal(t, 1, factory.CreateCalls, "the preset resource factory must be used")

	resolved, err := registry.Lookup(scope.Identity())
	require.NoError(t, err, "the preset registry must hold the scope")
	assert.Same(t, scope, resolved, "the preset registry must resolve to the scope")
}

func Test_ScopeFactory_CreateWithIsolation_OpensTransactions(t *testing.T) {
	// setup
	_, factory, presets := newScopeTestEnv()
	scopes := NewScopeFactory(presets...)

	// act
	scope, sctx, err := scopes.CreateWithIsolation(context.Background(), sql.LevelSerializable)
	require.NoError(t, err, "creating the isolated scope failed")
	defer func() { _ = scope.Close(sctx) }()

	_, err = scope.Resources().Get(sctx, "orders")
	require.NoError(t, err, "creating the handle failed")

	// assert
	assert.Equal(t, CreateNew, scope.JoinMode(), "isolation must force CreateNew")
	require.Len(t, factory.Created["orders"].Transactions, 1, "a transaction must be opened")
	assert.Equal(t, sql.LevelSerializable, factory.Created["orders"].Transactions[0].Level,
		"the requested isolation level must be used")
}

func Test_ScopeFactory_CreateReadOnly_CreatesReadOnlyScope(t *testing.T) {
	// setup
	_, factory, presets := newScopeTestEnv()
	scopes := NewScopeFactory(presets...)

	// act
	scope, sctx, err := scopes.CreateReadOnly(context.Background(), CreateNew)
	require.NoError(t, err, "creating the read-only scope failed")
	defer func() { _ = scope.Close(sctx) }()

	_, err = scope.Resources().Get(sctx, "reports")
	require.NoError(t, err, "creating the handle failed")

	// assert
	assert.True(t, scope.ReadOnly(), "the scope must be read-only")
	assert.True(t, factory.Created["reports"].ReadOnly, "the handle must be configured read-only")
}

func Test_ScopeFactory_SuppressAmbient_HidesAndRestoresTheAmbientScope(t *testing.T) {
	// setup
	_, _, presets := newScopeTestEnv()
	scopes := NewScopeFactory(presets...)

	outer, outerCtx, err := scopes.Create(context.Background(), JoinExisting)
	require.NoError(t, err, "creating the outer scope failed")
	defer func() { _ = outer.Close(outerCtx) }()

	// act
	suppressor, suppressedCtx, err := scopes.SuppressAmbient(outerCtx)
	require.NoError(t, err, "creating the suppressing scope failed")

	// assert
	_, ok := Current(suppressedCtx)
	assert.False(t, ok, "the suppressed context must carry no ambient scope")
	assert.True(t, suppressor.Suppressing(), "the scope must report itself as suppressing")
	assert.Same(t, outer, suppressor.Parent(), "the suppressor must remember the hidden scope")

	// act: completion of a suppressing scope is a persistence no-op
	changes, err := suppressor.Complete()
	require.NoError(t, err, "completing the suppressing scope failed")
	assert.Zero(t, changes, "a suppressing scope persists nothing")

	require.NoError(t, suppressor.Close(suppressedCtx), "closing the suppressing scope failed")

	identity, ok := Current(outerCtx)
	require.True(t, ok, "the outer context must still carry the hidden scope")
	assert.Equal(t, outer.Identity(), identity, "the outer scope must be ambient again")
}

func Test_ScopeFactory_Scopes_Share_The_PresetRegistry(t *testing.T) {
	// setup
	_, _, presets := newScopeTestEnv()
	scopes := NewScopeFactory(presets...)

	outer, outerCtx, err := scopes.Create(context.Background(), JoinExisting)
	require.NoError(t, err, "creating the outer scope failed")
	defer func() { _ = outer.Close(outerCtx) }()

	// act: a second factory scope still uses the presets
	inner, innerCtx, err := scopes.Create(outerCtx, JoinExisting)
	require.NoError(t, err, "creating the inner scope failed")
	defer func() { _ = inner.Close(innerCtx) }()

	// assert
	assert.True(t, inner.Nested(), "both scopes share the preset registry, so joining must work")
	assert.Same(t, outer.Resources(), inner.Resources(), "the nested scope must share the collection")
}
