package protocol

const (
	// Request validation.
	ErrBadRequest = "E_BAD_REQUEST"

	// Entity lookup.
	ErrAccountNotFound = "E_ACCOUNT_NOT_FOUND"
	ErrPlotNotFound    = "E_PLOT_NOT_FOUND"
	ErrMapNotFound     = "E_MAP_NOT_FOUND"

	// Ownership invariants.
	ErrPlotAlreadyOwned = "E_PLOT_ALREADY_OWNED"
	ErrAccountHasPlot   = "E_ACCOUNT_HAS_PLOT"
	ErrNotOwner         = "E_NOT_OWNER"

	// Backend.
	ErrStorage  = "E_STORAGE"
	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrBadRequest:       {},
	ErrAccountNotFound:  {},
	ErrPlotNotFound:     {},
	ErrMapNotFound:      {},
	ErrPlotAlreadyOwned: {},
	ErrAccountHasPlot:   {},
	ErrNotOwner:         {},
	ErrStorage:          {},
	ErrInternal:         {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
