package ledger

import "errors"

// Error taxonomy for the ownership paths. Conflict errors are distinct so
// the API can answer with a 409 instead of a generic failure.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrAccountNotFound  = errors.New("account not found")
	ErrPlotNotFound     = errors.New("plot not found")
	ErrMapNotFound      = errors.New("map not found")
	ErrPlotAlreadyOwned = errors.New("plot is already owned")
	ErrAccountHasPlot   = errors.New("account already owns a plot")
	ErrNotOwner         = errors.New("account does not own this plot")
)

// IsConflict reports whether err is one of the ownership-invariant
// conflicts (already owned / already owns one).
func IsConflict(err error) bool {
	return errors.Is(err, ErrPlotAlreadyOwned) || errors.Is(err, ErrAccountHasPlot) || errors.Is(err, ErrNotOwner)
}

// IsNotFound reports whether err is an entity-absent error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrPlotNotFound) || errors.Is(err, ErrMapNotFound)
}
