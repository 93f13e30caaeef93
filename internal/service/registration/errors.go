package registration

import (
	"errors"
	"fmt"
)

var (
	ErrEventNotFound    = errors.New("event not found")
	ErrEventInactive    = errors.New("event is not accepting registrations")
	ErrInvalidQuantity  = errors.New("quantity must be positive")
	ErrQuantityTooLarge = errors.New("quantity exceeds the per-purchase limit")
	ErrDateRequired     = errors.New("date is required for daily events")
	ErrDateNotAllowed   = errors.New("date is only accepted for daily events")
	ErrDateUnavailable  = errors.New("date is not bookable")
	ErrPaymentRequired  = errors.New("event requires payment")
	ErrCapacityExceeded = errors.New("not enough capacity")
)

// CapacityError reports which event (and date) ran out.
type CapacityError struct {
	EventID   int64
	Date      string
	Requested int
	Remaining int
}

func (e *CapacityError) Error() string {
	if e.Date != "" {
		return fmt.Sprintf("event %d on %s: requested %d, remaining %d", e.EventID, e.Date, e.Requested, e.Remaining)
	}
	return fmt.Sprintf("event %d: requested %d, remaining %d", e.EventID, e.Requested, e.Remaining)
}

func (e *CapacityError) Unwrap() error {
	return ErrCapacityExceeded
}

// IsRejection reports whether err is a classified refusal rather than a
// storage or encryption failure.
func IsRejection(err error) bool {
	for _, target := range []error{
		ErrEventNotFound,
		ErrEventInactive,
		ErrInvalidQuantity,
		ErrQuantityTooLarge,
		ErrDateRequired,
		ErrDateNotAllowed,
		ErrDateUnavailable,
		ErrPaymentRequired,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
