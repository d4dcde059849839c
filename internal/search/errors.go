package search

import "fmt"

// ValidationError reports malformed caller input (empty query, unknown scope).
// It never reaches the index and maps to a 4xx at the HTTP layer.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// StoreError wraps a failure of the underlying database. It is surfaced to the
// caller unretried; transient failures are the caller's problem.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// ConsistencyError reports a violated index invariant: a live primary row
// without a matching index document, or an index document without a primary
// row. It is fatal for the enclosing unit of work.
type ConsistencyError struct {
	Op       string
	EntityID string
	Msg      string
}

func (e *ConsistencyError) Error() string {
	if e.EntityID != "" {
		return fmt.Sprintf("%s: %s (entity %s)", e.Op, e.Msg, e.EntityID)
	}
	return e.Op + ": " + e.Msg
}
