package attendees

import "errors"

var (
	ErrEventNotFound      = errors.New("event not found")
	ErrAttendeeNotFound   = errors.New("attendee not found")
	ErrRefunded           = errors.New("attendee has been refunded")
	ErrAlreadyCheckedIn   = errors.New("attendee already checked in")
	ErrNoPaymentReference = errors.New("attendee has no payment to refund")
	ErrAlreadyRefunded    = errors.New("attendee already refunded")
	ErrAnomalyNotFound    = errors.New("anomaly not found")
	ErrAnomalyResolved    = errors.New("anomaly already resolved")
)
