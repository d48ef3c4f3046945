package dbscope

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	logMsgAutoCommitFailed   = "auto-commit of read-only collection failed during disposal"
	logMsgAutoRollbackFailed = "auto-rollback of collection failed during disposal"
	logMsgTxRollbackFailed   = "failed to roll back leftover transaction during disposal"
	logMsgHandleCloseFailed  = "failed to close resource handle during disposal"
	logMsgCommitCompleted    = "resource collection committed"
	logMsgRollbackCompleted  = "resource collection rolled back"
	logAttrError             = "error"
	logAttrResourceType      = "resource_type"
	logAttrHandleCount       = "handle_count"
	logAttrChangeCount       = "change_count"
	logAttrDurationMS        = "duration_ms"
	metricCommitDuration     = "dbscope_commit_duration_seconds"
	metricCompletionErrors   = "dbscope_completion_errors_total"
	spanNameCommit           = "dbscope.commit"
	spanAttrOperation        = "operation"
	spanAttrErrorType        = "error_type"
	spanAttrHandleCount      = "handle_count"
	operationCommit          = "commit"
	labelStatus              = "status"
	statusSuccess            = "success"
	statusError              = "error"
	errorTypeSave            = "save_failed"
	errorTypeTxCommit        = "transaction_commit_failed"
	errorTypeCancelled       = "cancelled"
)

// ResourceCollection owns the lazily-created resource handles of one unit of work,
// one optional transaction per handle, and the commit/rollback/dispose protocol.
//
// A collection is exclusively owned by the chain of scopes sharing it (one outermost
// owner plus any nested joiners) and carries no locking: concurrent flows must never
// hold a reference to the same collection simultaneously.
type ResourceCollection struct {
	readOnly  bool
	isolation *sql.IsolationLevel
	factory   Factory
	handles   map[Type]Handle
	order     []Type
	txs       map[Type]Tx
	completed bool
	disposed  bool
	obs       observers
}

func newResourceCollection(
	readOnly bool,
	isolation *sql.IsolationLevel,
	factory Factory,
	obs observers,
) *ResourceCollection {
	return &ResourceCollection{
		readOnly:  readOnly,
		isolation: isolation,
		factory:   factory,
		handles:   make(map[Type]Handle),
		txs:       make(map[Type]Tx),
		obs:       obs,
	}
}

// Get returns the handle for the requested resource type, creating it on first use.
// A resource type is instantiated at most once per collection; repeated calls return
// the same handle instance. When the collection was built with an isolation level,
// a transaction is opened on every freshly created handle.
func (c *ResourceCollection) Get(ctx context.Context, resourceType Type) (Handle, error) {
	if c.disposed {
		return nil, ErrUseAfterDispose
	}

	if handle, ok := c.handles[resourceType]; ok {
		return handle, nil
	}

	handle, err := c.createHandle(resourceType)
	if err != nil {
		return nil, err
	}

	handle.SetReadOnly(c.readOnly)
	c.handles[resourceType] = handle
	c.order = append(c.order, resourceType)

	if c.isolation != nil {
		tx, beginErr := handle.Begin(ctx, *c.isolation)
		if beginErr != nil {
			// The handle stays registered and will be released with the collection.
			return nil, errors.Join(ErrOpeningTransactionFailed, beginErr)
		}

		c.txs[resourceType] = tx
	}

	return handle, nil
}

// createHandle asks the configured factory for a new handle, falling back to the
// package-level constructor registry when no factory was supplied.
func (c *ResourceCollection) createHandle(resourceType Type) (Handle, error) {
	if c.factory != nil {
		return c.factory.Create(resourceType)
	}

	return newDefaultHandle(resourceType)
}

// Commit persists and commits all handles. See CommitContext.
func (c *ResourceCollection) Commit() (ChangeCountInt64, error) {
	return c.CommitContext(context.Background())
}

// CommitContext persists pending changes and commits open transactions, iterating
// handles in the order they were first created and accumulating the reported change
// counts. Per-handle failures are captured so that every handle still gets its chance
// to persist; afterwards all captured failures are returned joined with ErrCommitFailed.
//
// Once ctx is cancelled no further per-handle commit is started; the handle that is
// mid-commit is allowed to finish. The collection is marked completed even when some
// handles failed, so that disposal will not re-attempt completion.
func (c *ResourceCollection) CommitContext(ctx context.Context) (ChangeCountInt64, error) {
	if c.disposed {
		return 0, ErrUseAfterDispose
	}

	if c.completed {
		return 0, ErrDoubleCompletion
	}

	spanCtx, span := c.obs.startSpan(ctx, spanNameCommit, map[string]string{
		spanAttrOperation:   operationCommit,
		spanAttrHandleCount: fmt.Sprintf("%d", len(c.order)),
	})

	start := time.Now()
	totalChanges, failures := c.commitHandles(spanCtx)
	duration := time.Since(start)

	c.completed = true

	if len(failures) > 0 {
		c.obs.recordErrorContext(spanCtx, operationCommit, commitErrorType(failures))
		c.obs.finishSpan(span, statusError, map[string]string{spanAttrErrorType: commitErrorType(failures)})

		return totalChanges, errors.Join(append([]error{ErrCommitFailed}, failures...)...)
	}

	c.obs.recordDurationContext(spanCtx, metricCommitDuration, duration, operationCommit, statusSuccess)
	c.obs.finishSpan(span, statusSuccess, nil)
	c.obs.logOperationContext(spanCtx, logMsgCommitCompleted,
		logAttrHandleCount, len(c.order),
		logAttrChangeCount, totalChanges,
		logAttrDurationMS, toMilliseconds(duration))

	return totalChanges, nil
}

// commitHandles runs the per-handle save/commit loop and captures failures.
func (c *ResourceCollection) commitHandles(ctx context.Context) (ChangeCountInt64, []error) {
	var totalChanges ChangeCountInt64
	var failures []error

	for _, resourceType := range c.order {
		if ctxErr := ctx.Err(); ctxErr != nil {
			failures = append(failures, ctxErr)
			break
		}

		handle := c.handles[resourceType]

		if !c.readOnly {
			changes, saveErr := handle.Save(ctx)
			if saveErr != nil {
				failures = append(failures, fmt.Errorf("persisting %q: %w", resourceType, saveErr))
				continue
			}

			totalChanges += changes
		}

		if tx, ok := c.txs[resourceType]; ok {
			if commitErr := tx.Commit(ctx); commitErr != nil {
				failures = append(failures, fmt.Errorf("committing transaction of %q: %w", resourceType, commitErr))
				continue
			}

			delete(c.txs, resourceType)
		}
	}

	return totalChanges, failures
}

// commitErrorType classifies the first captured failure for metrics labels.
func commitErrorType(failures []error) string {
	first := failures[0]

	switch {
	case errors.Is(first, context.Canceled), errors.Is(first, context.DeadlineExceeded):
		return errorTypeCancelled
	case errors.Is(first, sql.ErrTxDone):
		return errorTypeTxCommit
	default:
		return errorTypeSave
	}
}

// Rollback rolls back all open transactions. See RollbackContext.
func (c *ResourceCollection) Rollback() error {
	return c.RollbackContext(context.Background())
}

// RollbackContext rolls back every open transaction in handle creation order.
// Handles without an explicit transaction require no action; their unsaved changes
// are simply never persisted. Marks the collection completed.
func (c *ResourceCollection) RollbackContext(ctx context.Context) error {
	if c.disposed {
		return ErrUseAfterDispose
	}

	if c.completed {
		return ErrDoubleCompletion
	}

	var failures []error

	for _, resourceType := range c.order {
		tx, ok := c.txs[resourceType]
		if !ok {
			continue
		}

		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
			failures = append(failures, fmt.Errorf("rolling back transaction of %q: %w", resourceType, rollbackErr))
		}

		delete(c.txs, resourceType)
	}

	c.completed = true

	if len(failures) > 0 {
		return errors.Join(append([]error{ErrRollbackFailed}, failures...)...)
	}

	c.obs.logOperationContext(ctx, logMsgRollbackCompleted, logAttrHandleCount, len(c.order))

	return nil
}

// Dispose releases the collection. If it was not completed yet, a read-only collection
// is auto-committed and a read-write one auto-rolled-back first. Disposal never fails:
// completion and per-handle close errors are logged, not returned, so that cleanup is
// total and does not mask an earlier, more meaningful failure. Idempotent.
func (c *ResourceCollection) Dispose() {
	if c.disposed {
		return
	}

	if !c.completed {
		if c.readOnly {
			if _, commitErr := c.Commit(); commitErr != nil {
				c.obs.logError(logMsgAutoCommitFailed, commitErr)
			}
		} else {
			if rollbackErr := c.Rollback(); rollbackErr != nil {
				c.obs.logError(logMsgAutoRollbackFailed, rollbackErr)
			}
		}
	}

	// A partially failed commit can leave transactions open; finalize them before
	// the handles go away.
	for _, resourceType := range c.order {
		if tx, ok := c.txs[resourceType]; ok {
			if rollbackErr := tx.Rollback(context.Background()); rollbackErr != nil {
				c.obs.logWarn(logMsgTxRollbackFailed, logAttrError, rollbackErr.Error(), logAttrResourceType, string(resourceType))
			}

			delete(c.txs, resourceType)
		}
	}

	for _, resourceType := range c.order {
		if closeErr := c.handles[resourceType].Close(); closeErr != nil {
			c.obs.logWarn(logMsgHandleCloseFailed, logAttrError, closeErr.Error(), logAttrResourceType, string(resourceType))
		}
	}

	c.handles = make(map[Type]Handle)
	c.order = nil
	c.disposed = true
}

// ReadOnly reports whether the collection tracks changes read-only.
func (c *ResourceCollection) ReadOnly() bool {
	return c.readOnly
}

// Completed reports whether the collection was committed or rolled back.
func (c *ResourceCollection) Completed() bool {
	return c.completed
}

// Disposed reports whether the collection was disposed.
func (c *ResourceCollection) Disposed() bool {
	return c.disposed
}

// HandleCount reports the number of handles created so far.
func (c *ResourceCollection) HandleCount() int {
	return len(c.order)
}
