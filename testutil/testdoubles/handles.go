package testdoubles

import (
	"context"
	"database/sql"

	"github.com/yegor-mialyk/DbContextScope/dbscope"
)

// MemHandle is an in-memory dbscope.Handle. Changes are recorded as plain counters;
// Save reports the number of units recorded since the last save. Failure fields allow
// injecting errors into the save, begin, and close paths.
type MemHandle struct {
	ResourceType dbscope.Type
	ReadOnly     bool
	Pending      int
	Saved        int
	SaveCalls    int
	Closed       bool
	Transactions []*MemTx

	SaveErr  error
	BeginErr error
	CloseErr error

	saveOrder *[]dbscope.Type
}

// NewMemHandle creates a handle for the given resource type.
func NewMemHandle(resourceType dbscope.Type) *MemHandle {
	return &MemHandle{ResourceType: resourceType}
}

// RecordChange registers one pending unit of work on the handle.
func (h *MemHandle) RecordChange() {
	h.Pending++
}

// SetReadOnly implements dbscope.Handle.
func (h *MemHandle) SetReadOnly(readOnly bool) {
	h.ReadOnly = readOnly
}

// Save implements dbscope.Handle. It reports the number of units recorded since the
// last save and appends the handle's resource type to the shared save-order recorder.
func (h *MemHandle) Save(_ context.Context) (dbscope.ChangeCountInt64, error) {
	h.SaveCalls++

	if h.SaveErr != nil {
		return 0, h.SaveErr
	}

	changes := dbscope.ChangeCountInt64(h.Pending)
	h.Saved += h.Pending
	h.Pending = 0

	if h.saveOrder != nil {
		*h.saveOrder = append(*h.saveOrder, h.ResourceType)
	}

	return changes, nil
}

// Begin implements dbscope.Handle.
func (h *MemHandle) Begin(_ context.Context, level sql.IsolationLevel) (dbscope.Tx, error) {
	if h.BeginErr != nil {
		return nil, h.BeginErr
	}

	tx := &MemTx{Level: level}
	h.Transactions = append(h.Transactions, tx)

	return tx, nil
}

// Close implements dbscope.Handle.
func (h *MemHandle) Close() error {
	h.Closed = true
	return h.CloseErr
}

// MemTx is an in-memory dbscope.Tx recording its outcome.
type MemTx struct {
	Level      sql.IsolationLevel
	Committed  bool
	RolledBack bool

	CommitErr   error
	RollbackErr error
}

// Commit implements dbscope.Tx.
func (t *MemTx) Commit(_ context.Context) error {
	if t.CommitErr != nil {
		return t.CommitErr
	}

	t.Committed = true

	return nil
}

// Rollback implements dbscope.Tx.
func (t *MemTx) Rollback(_ context.Context) error {
	if t.RollbackErr != nil {
		return t.RollbackErr
	}

	t.RolledBack = true

	return nil
}

// MemFactory is a dbscope.Factory producing MemHandles and keeping every handle it
// created for inspection. All handles share one save-order recorder so tests can
// assert that commits run in handle creation order.
type MemFactory struct {
	Created     map[dbscope.Type]*MemHandle
	CreateCalls int
	SaveOrder   []dbscope.Type

	CreateErr error
}

// NewMemFactory creates an empty factory.
func NewMemFactory() *MemFactory {
	return &MemFactory{Created: make(map[dbscope.Type]*MemHandle)}
}

// Create implements dbscope.Factory.
func (f *MemFactory) Create(resourceType dbscope.Type) (dbscope.Handle, error) {
	f.CreateCalls++

	if f.CreateErr != nil {
		return nil, f.CreateErr
	}

	handle := NewMemHandle(resourceType)
	handle.saveOrder = &f.SaveOrder
	f.Created[resourceType] = handle

	return handle, nil
}
