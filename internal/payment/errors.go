package payment

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrSessionNotFound     = errors.New("checkout session not found")
	ErrMetadataTooLong     = errors.New("booking does not fit in provider metadata")
	ErrInvalidMetadata     = errors.New("invalid booking metadata")
	ErrUnknownProvider     = errors.New("unknown payment provider")
)

// ManualSetupError is returned by providers whose webhook endpoint has to
// be configured by hand in the provider dashboard.
type ManualSetupError struct {
	Provider Provider
	Steps    string
}

func (e *ManualSetupError) Error() string {
	return fmt.Sprintf("%s webhook must be configured manually: %s", e.Provider, e.Steps)
}

// StatusError is a non-2xx provider response. It unwraps to
// ErrProviderUnavailable, or ErrSessionNotFound for 404s.
type StatusError struct {
	Provider Provider
	Status   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s responded %d", e.Provider, e.Status)
}

func (e *StatusError) Unwrap() error {
	if e.Status == 404 {
		return ErrSessionNotFound
	}
	return ErrProviderUnavailable
}
