package query

import (
	"errors"
)

var (
	ErrEventNotFound  = errors.New("event not found")
	ErrDateRequired   = errors.New("date is required for daily events")
	ErrDateNotAllowed = errors.New("date is only accepted for daily events")
	ErrInvalidDate    = errors.New("invalid date")
)
