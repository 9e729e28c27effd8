package fi

import "errors"

var (
	// ErrNoCompletion indicates that no completion entries were available.
	// It is the try-again condition, not a failure.
	ErrNoCompletion = errors.New("efadirect: no completion available")
	// ErrErrorAvailable indicates that a completion is pending in error
	// state; callers retrieve the detail through ReadError before further
	// reads proceed past it.
	ErrErrorAvailable = errors.New("efadirect: completion error available")
)

// ErrInvalidHandle indicates a nil or closed handle was used.
type ErrInvalidHandle struct {
	Resource string
}

func (e ErrInvalidHandle) Error() string {
	return "invalid or closed " + e.Resource + " handle"
}
