package dbscope_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/yegor-mialyk/DbContextScope/dbscope"
	"github.com/yegor-mialyk/DbContextScope/testutil/testdoubles"
)

// hookHandle wraps a MemHandle and runs a callback before every save.
type hookHandle struct {
	*testdoubles.MemHandle
	onSave func()
}

func (h *hookHandle) Save(ctx context.Context) (ChangeCountInt64, error) {
	if h.onSave != nil {
		h.onSave()
	}

	return h.MemHandle.Save(ctx)
}

func Test_Get_Is_Idempotent_PerResourceType(t *testing.T) {
	// setup
	_, factory, presets := newScopeTestEnv()
	scope, sctx, err := New(context.Background(), presets...)
	require.NoError(t, err, "creating the scope failed")
	defer func() { _ = scope.Close(sctx) }()

	// act
	first, err := scope.Resources().Get(sctx, "orders")
	require.NoError(t, err, "first get failed")
	second, err := scope.Resources().Get(sctx, "orders")
	require.NoError(t, err, "second get failed")

	// assert
	assert.Same(t, first, second, "repeated gets must return the same handle instance")
	assert.Equal(t, 1, factory.CreateCalls, "the factory must be asked only once per resource type")
	assert.Equal(t, 1, scope.Resources().HandleCount(), "only one handle must be tracked")
}

func Test_Commit_Runs_In_HandleCreationOrder(t *testing.T) {
	// setup
	_, factory, presets := newScopeTestEnv()
	scope, sctx, err := New(context.Background(), presets...)
	require.NoError(t, err, "creating the scope failed")
	defer func() { _ = scope.Close(sctx) }()

	// arrange
	for _, resourceType := range []Type{"orders", "invoices", "shipments"} {
		_, getErr := scope.Resources().Get(sctx, resourceType)
		require.NoError(t, getErr, "creating the handle failed")
	}

	// act
	_, err = scope.Resources().Commit()

	// assert
	require.NoError(t, err, "committing the collection failed")
	assert.Equal(t, []Type{"orders", "invoices", "shipments"}, factory.SaveOrder,
		"handles must be committed in creation order")
}

func Test_Commit_CapturesPerHandleFailures_And_Continues(t *testing.T) {
	// setup
	_, factory, presets := newScopeTestEnv()
	scope, sctx, err := New(context.Background(), presets...)
	require.NoError(t, err, "creating the scope failed")
	defer func() { _ = scope.Close(sctx) }()

	// arrange
	for _, resourceType := range []Type{"orders", "invoices", "shipments"} {
		_, getErr := scope.Resources().Get(sctx, resourceType)
		require.NoError(t, getErr, "creating the handle failed")
		factory.Created[resourceType].RecordChange()
	}

	saveFailure := errors.New("constraint violated")
	factory.Created["invoices"].SaveErr = saveFailure

	// act
	changes, err := scope.Resources().Commit()

	// assert
	assert.ErrorIs(t, err, ErrCommitFailed, "the aggregate must carry the commit sentinel")
	assert.ErrorIs(t, err, saveFailure, "the aggregate must carry the underlying failure")
	assert.ErrorContains(t, err, "invoices", "the failure must name the resource type")
	assert.Equal(t, int64(2), changes, "the handles that succeeded must still be counted")
	assert.Equal(t, 1, factory.Created["shipments"].SaveCalls,
		"handles after the failing one must still get their chance to persist")
	assert.True(t, scope.Resources().Completed(), "a partially failed commit still completes the collection")
}

func Test_Commit_When_ContextIsCancelled_StopsFurtherHandles(t *testing.T) {
	// setup
	cancellableCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	firstHandle := &hookHandle{MemHandle: testdoubles.NewMemHandle("orders"), onSave: cancel}
	secondHandle := testdoubles.NewMemHandle("invoices")
	handles := map[Type]Handle{"orders": firstHandle, "invoices": secondHandle}
	factory := FactoryFunc(func(resourceType Type) (Handle, error) {
		return handles[resourceType], nil
	})

	scope, sctx, err := New(cancellableCtx, WithRegistry(NewAmbientRegistry()), WithFactory(factory))
	require.NoError(t, err, "creating the scope failed")
	defer func() { _ = scope.Close(sctx) }()

	// arrange
	for _, resourceType := range []Type{"orders", "invoices"} {
		_, getErr := scope.Resources().Get(sctx, resourceType)
		require.NoError(t, getErr, "creating the handle failed")
	}

	firstHandle.RecordChange()
	secondHandle.RecordChange()

	// act: the first handle cancels the context while persisting
	_, err = scope.Resources().CommitContext(sctx)

	// assert
	assert.ErrorIs(t, err, ErrCommitFailed, "the aggregate must carry the commit sentinel")
	assert.ErrorIs(t, err, context.Canceled, "the aggregate must carry the cancellation")
	assert.Equal(t, 1, firstHandle.SaveCalls, "the in-flight handle must finish its persist")
	assert.Zero(t, secondHandle.SaveCalls, "no further handle must be started after cancellation")
	assert.True(t, scope.Resources().Completed(), "a cancelled commit still completes the collection")
}

func Test_Commit_Twice_Fails_With_DoubleCompletion(t *testing.T) {
	// setup
	_, _, presets := newScopeTestEnv()
	scope, sctx, err := New(context.Background(), presets...)
	require.NoError(t, err, "creating the scope failed")
	defer func() { _ = scope.Close(sctx) }()

	// arrange
	_, err = scope.Resources().Commit()
	require.NoError(t, err, "first commit failed")

	// act
	_, err = scope.Resources().Commit()

	// assert
	assert.ErrorIs(t, err, ErrDoubleCompletion, "a second commit must fail")
}

func Test_Rollback_RollsBack_OpenTransactions(t *testing.T) {
	// setup
	_, factory, presets := newScopeTestEnv()
	scope, sctx, err := New(context.Background(),
		append(presets, WithIsolationLevel(sql.LevelReadCommitted))...)
	require.NoError(t, err, "creating the scope failed")
	defer func() { _ = scope.Close(sctx) }()

	// arrange
	for _, resourceType := range []Type{"orders", "invoices"} {
		_, getErr := scope.Resources().Get(sctx, resourceType)
		require.NoError(t, getErr, "creating the handle failed")
	}

	// act
	err = scope.Resources().Rollback()

	// assert
	require.NoError(t, err, "rolling back the collection failed")
	assert.True(t, factory.Created["orders"].Transactions[0].RolledBack, "the first transaction must be rolled back")
	assert.True(t, factory.Created["invoices"].Transactions[0].RolledBack, "the second transaction must be rolled back")
	assert.True(t, scope.Resources().Completed(), "rollback must complete the collection")

	// act: a second rollback must be rejected
	err = scope.Resources().Rollback()

	// assert
	assert.ErrorIs(t, err, ErrDoubleCompletion, "a rollback after completion must fail")
}

func Test_Rollback_AggregatesFailures(t *testing.T) {
	// setup
	_, factory, presets := newScopeTestEnv()
	scope, sctx, err := New(context.Background(),
		append(presets, WithIsolationLevel(sql.LevelReadCommitted))...)
	require.NoError(t, err, "creating the scope failed")
	defer func() { _ = scope.Close(sctx) }()

	// arrange
	_, err = scope.Resources().Get(sctx, "orders")
	require.NoError(t, err, "creating the handle failed")

	rollbackFailure := errors.New("connection lost")
	factory.Created["orders"].Transactions[0].RollbackErr = rollbackFailure

	// act
	err = scope.Resources().Rollback()

	// assert
	assert.ErrorIs(t, err, ErrRollbackFailed, "the aggregate must carry the rollback sentinel")
	assert.ErrorIs(t, err, rollbackFailure, "the aggregate must carry the underlying failure")
	assert.True(t, scope.Resources().Completed(), "a failed rollback still completes the collection")
}

func Test_Dispose_ClosesHandles_And_LogsCloseFailures(t *testing.T) {
	// setup
	loggerSpy := testdoubles.NewLoggerSpy()
	_, factory, presets := newScopeTestEnv()
	scope, sctx, err := New(context.Background(), append(presets, WithLogger(loggerSpy))...)
	require.NoError(t, err, "creating the scope failed")

	// arrange
	for _, resourceType := range []Type{"orders", "invoices"} {
		_, getErr := scope.Resources().Get(sctx, resourceType)
		require.NoError(t, getErr, "creating the handle failed")
	}

	factory.Created["invoices"].CloseErr = errors.New("already closed")

	_, err = scope.Complete()
	require.NoError(t, err, "completing the scope failed")

	// act
	require.NoError(t, scope.Close(sctx), "closing the scope failed")

	// assert
	assert.True(t, factory.Created["orders"].Closed, "every handle must be closed on disposal")
	assert.True(t, factory.Created["invoices"].Closed, "every handle must be closed on disposal")
	assert.Contains(t, loggerSpy.MessagesAtLevel("warn"),
		"failed to close resource handle during disposal",
		"a close failure must be logged, not returned")
	assert.True(t, scope.Resources().Disposed(), "the collection must be disposed")

	// act: disposal is idempotent through repeated close
	assert.NoError(t, scope.Close(sctx), "repeated close must never fail")
}

func Test_Get_After_Dispose_Fails_With_UseAfterDispose(t *testing.T) {
	// setup
	_, _, presets := newScopeTestEnv()
	scope, sctx, err := New(context.Background(), presets...)
	require.NoError(t, err, "creating the scope failed")
	require.NoError(t, scope.Close(sctx), "closing the scope failed")

	// act
	_, err = scope.Resources().Get(sctx, "orders")

	// assert
	assert.ErrorIs(t, err, ErrUseAfterDispose, "getting a handle from a disposed collection must fail")
}

func Test_Get_When_OpeningTransactionFails_KeepsHandleRegistered(t *testing.T) {
	// setup
	beginFailure := errors.New("too many connections")
	brokenHandle := testdoubles.NewMemHandle("orders")
	brokenHandle.BeginErr = beginFailure
	brokenFactory := FactoryFunc(func(Type) (Handle, error) { return brokenHandle, nil })

	scope, sctx, err := New(context.Background(),
		WithRegistry(NewAmbientRegistry()), WithFactory(brokenFactory), WithIsolationLevel(sql.LevelSerializable))
	require.NoError(t, err, "creating the scope failed")

	// act
	_, err = scope.Resources().Get(sctx, "orders")

	// assert
	assert.ErrorIs(t, err, ErrOpeningTransactionFailed, "the transaction failure must be reported")
	assert.ErrorIs(t, err, beginFailure, "the underlying failure must be wrapped")
	assert.Equal(t, 1, scope.Resources().HandleCount(), "the handle must stay registered for disposal")

	require.NoError(t, scope.Close(sctx), "closing the scope failed")
	assert.True(t, brokenHandle.Closed, "the registered handle must be released with the collection")
}

func Test_Commit_Reports_Observability_Signals(t *testing.T) {
	// setup
	loggerSpy := testdoubles.NewLoggerSpy()
	metricsSpy := testdoubles.NewMetricsCollectorSpy()
	tracingSpy := testdoubles.NewTracingCollectorSpy()

	_, factory, presets := newScopeTestEnv()
	scope, sctx, err := New(context.Background(),
		append(presets, WithLogger(loggerSpy), WithMetrics(metricsSpy), WithTracing(tracingSpy))...)
	require.NoError(t, err, "creating the scope failed")
	defer func() { _ = scope.Close(sctx) }()

	_, err = scope.Resources().Get(sctx, "orders")
	require.NoError(t, err, "creating the handle failed")
	factory.Created["orders"].RecordChange()

	// act
	_, err = scope.CompleteContext(sctx)
	require.NoError(t, err, "completing the scope failed")

	// assert
	require.Len(t, tracingSpy.Spans, 1, "exactly one commit span must be created")
	assert.Equal(t, "dbscope.commit", tracingSpy.Spans[0].Name, "the span must carry the commit name")
	assert.Equal(t, "success", tracingSpy.Spans[0].Status, "the span must finish successfully")
	assert.True(t, tracingSpy.Spans[0].Finished, "the span must be finished")

	require.Len(t, metricsSpy.Durations, 1, "the commit duration must be recorded")
	assert.Equal(t, "dbscope_commit_duration_seconds", metricsSpy.Durations[0].Metric,
		"the duration must use the commit metric name")

	assert.Contains(t, loggerSpy.MessagesAtLevel("info"), "resource collection committed",
		"the successful commit must be logged")
}

func Test_Commit_Failure_Increments_ErrorCounter(t *testing.T) {
	// setup
	metricsSpy := testdoubles.NewMetricsCollectorSpy()

	_, factory, presets := newScopeTestEnv()
	scope, sctx, err := New(context.Background(), append(presets, WithMetrics(metricsSpy))...)
	require.NoError(t, err, "creating the scope failed")
	defer func() { _ = scope.Close(sctx) }()

	_, err = scope.Resources().Get(sctx, "orders")
	require.NoError(t, err, "creating the handle failed")
	factory.Created["orders"].SaveErr = errors.New("constraint violated")

	// act
	_, err = scope.CompleteContext(sctx)

	// assert
	require.ErrorIs(t, err, ErrCommitFailed, "the commit must fail")
	require.Len(t, metricsSpy.Counters, 1, "the failure counter must be incremented")
	assert.Equal(t, "dbscope_completion_errors_total", metricsSpy.Counters[0].Metric,
		"the counter must use the completion errors metric name")
	assert.Equal(t, "save_failed", metricsSpy.Counters[0].Labels["error_type"],
		"the failure must be classified as a save failure")
}
