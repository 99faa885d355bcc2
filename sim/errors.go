package sim

import (
	"errors"
	"fmt"
)

// Error taxonomy. Sentinel errors cover expected, recoverable conditions;
// callers classify with errors.Is. InvariantViolation is the one fatal
// class: it indicates state corruption and halts the current tick.
var (
	// ErrNotFound: the named entity does not exist in the live record set.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientStock: a reserve asked for more units than available.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrStockCapacity: a release or restock would exceed MaxCapacity.
	ErrStockCapacity = errors.New("stock capacity exceeded")

	// ErrAgvUnavailable: the AGV is not Idle and cannot take a task.
	ErrAgvUnavailable = errors.New("agv unavailable")

	// ErrInvalidOrder: order submission rejected at the boundary.
	ErrInvalidOrder = errors.New("invalid order")

	// ErrConflict: an entity changed between snapshot and commit. Retried
	// locally a bounded number of times, then surfaced as a precondition
	// failure.
	ErrConflict = errors.New("conflict")

	// ErrOracleUnavailable: the decision oracle timed out or returned a
	// malformed response. Always recovered via the fallback policy.
	ErrOracleUnavailable = errors.New("oracle unavailable")

	// ErrTaskNotCancellable: cancellation requested for a task that is
	// already assigned or in progress.
	ErrTaskNotCancellable = errors.New("task not cancellable")
)

// InvariantViolation reports should-be-unreachable state corruption, e.g.
// two tasks naming the same AGV. Not recoverable: the Coordinator halts
// the tick and surfaces it for operator intervention.
type InvariantViolation struct {
	Entity string
	ID     string
	Detail string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation on %s %s: %s", e.Entity, e.ID, e.Detail)
}

// IsInvariantViolation reports whether err is (or wraps) an InvariantViolation.
func IsInvariantViolation(err error) bool {
	var iv *InvariantViolation
	return errors.As(err, &iv)
}
