package checkout

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrFreeEvent       = errors.New("event is free, register directly")
	ErrEmptyCheckout   = errors.New("checkout has no items")
	ErrContactRequired = errors.New("name and email are required")
	ErrRateLimited     = errors.New("too many checkout attempts")
)

type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry in %s", e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error {
	return ErrRateLimited
}
