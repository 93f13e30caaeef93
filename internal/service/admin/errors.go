package admin

import (
	"errors"
)

var (
	ErrEventConflict  = errors.New("event already exists")
	ErrInvalidEvent   = errors.New("invalid event")
	ErrInvalidHoliday = errors.New("invalid holiday")
	ErrInvalidURL     = errors.New("invalid webhook url")
)
