package dbscope

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

// scopeTraceEntry is one scope in the diagnostic chain attached to fatal disposal errors.
type scopeTraceEntry struct {
	Identity    string `json:"identity"`
	JoinMode    string `json:"join_mode"`
	Nested      bool   `json:"nested"`
	ReadOnly    bool   `json:"read_only"`
	Suppressing bool   `json:"suppressing"`
	Completed   bool   `json:"completed"`
	Disposed    bool   `json:"disposed"`
}

// buildScopeTrace walks the parent chain starting at the given scope.
func buildScopeTrace(scope *Scope) []scopeTraceEntry {
	var trace []scopeTraceEntry

	for current := scope; current != nil; current = current.parent {
		trace = append(trace, scopeTraceEntry{
			Identity:    current.identity.String(),
			JoinMode:    current.joinMode.String(),
			Nested:      current.nested,
			ReadOnly:    current.readOnly,
			Suppressing: current.suppressing,
			Completed:   current.completed,
			Disposed:    current.disposed,
		})
	}

	return trace
}

// traceJSON renders the scope chain as JSON for error messages. Encoding a slice of
// scalars cannot fail, but the fallback keeps the diagnostic total on principle.
func traceJSON(scope *Scope) string {
	payload, err := jsoniter.ConfigFastest.MarshalToString(buildScopeTrace(scope))
	if err != nil {
		return "(scope trace unavailable)"
	}

	return payload
}

// newDisposalOrderError builds the fatal error for a scope disposed while it is not
// the current ambient scope of the supplied context.
func newDisposalOrderError(scope *Scope) error {
	return fmt.Errorf(
		"%w: scope %s is not the current ambient scope of the supplied context; "+
			"scopes must be closed in exact reverse order of creation, with the context each New returned; "+
			"scope chain: %s",
		ErrDisposalOrderViolation, scope.identity, traceJSON(scope))
}

// newCrossFlowLeakError builds the fatal error for a nested scope whose parent was
// already disposed. This happens when a concurrent flow is forked from within a scope
// without suppressing the ambient scope first: the forked flow joins a "parent" that
// belongs to an unrelated flow and finds it completed and disposed by the time it
// closes its own scope.
func newCrossFlowLeakError(scope *Scope) error {
	return fmt.Errorf(
		"%w: nested scope %s found its parent %s already disposed; "+
			"this indicates the ambient scope leaked into a concurrently scheduled flow; "+
			"fork concurrent work with a context derived via SuppressAmbient (or a Suppress scope) "+
			"so each flow starts without an ambient scope; scope chain: %s",
		ErrCrossFlowLeak, scope.identity, scope.parent.identity, traceJSON(scope))
}
