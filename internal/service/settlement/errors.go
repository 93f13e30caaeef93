package settlement

import "errors"

var (
	// ErrOversoldAnomaly means the checkout was paid but the events no
	// longer had room. The payment record and an anomaly are kept for
	// operator follow-up.
	ErrOversoldAnomaly     = errors.New("paid checkout exceeds remaining capacity")
	ErrPaymentNotCompleted = errors.New("payment not completed")
)
