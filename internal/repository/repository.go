package repository

import (
	"context"

	"github.com/chobbledotcom/tickets-sub006/internal/domain"
)

type EventRepository interface {
	Get(ctx context.Context, id int64) (*domain.Event, error)
	// GetForUpdate reads the event and locks its row until the surrounding
	// transaction ends. Registrations for the same event serialize on it.
	GetForUpdate(ctx context.Context, id int64) (*domain.Event, error)
	Create(ctx context.Context, ev *domain.Event) (int64, error)
}

type HolidayRepository interface {
	List(ctx context.Context) ([]domain.Holiday, error)
	Create(ctx context.Context, h *domain.Holiday) (int64, error)
}

type AttendeeRepository interface {
	// InsertWithinCapacity inserts a only if the committed quantity for its
	// event (and date, when set) plus a.Quantity stays within capacity. The
	// sum and the insert run as one statement. Returns ErrCapacityExceeded
	// when the row was not inserted.
	InsertWithinCapacity(ctx context.Context, a *domain.Attendee, capacity int) (int64, error)
	CommittedQuantity(ctx context.Context, eventID int64, date string) (int, error)
	Get(ctx context.Context, id int64) (*domain.Attendee, error)
	GetByToken(ctx context.Context, token string) (*domain.Attendee, error)
	ListByEvent(ctx context.Context, eventID int64) ([]domain.Attendee, error)
	ListByPaymentID(ctx context.Context, paymentID string) ([]domain.Attendee, error)
	// MarkCheckedIn returns ErrConflict when the attendee is refunded.
	MarkCheckedIn(ctx context.Context, id int64) error
	MarkRefunded(ctx context.Context, id int64) error
}

// PaymentRepository is the idempotency ledger of settled provider sessions.
type PaymentRepository interface {
	// Claim reports false when sessionID was already claimed.
	Claim(ctx context.Context, sessionID string, attendeeID int64) (bool, error)
	Lookup(ctx context.Context, sessionID string) (int64, error)
	Link(ctx context.Context, sessionID string, attendeeID int64) error
}

type AnomalyRepository interface {
	Record(ctx context.Context, a *domain.PaymentAnomaly) error
	Get(ctx context.Context, sessionID string) (*domain.PaymentAnomaly, error)
	List(ctx context.Context, includeResolved bool) ([]domain.PaymentAnomaly, error)
	Resolve(ctx context.Context, sessionID string) error
}

type KeyRepository interface {
	GetKeySet(ctx context.Context) (*domain.KeySet, error)
	SaveKeySet(ctx context.Context, ks *domain.KeySet) error
	CountAdmins(ctx context.Context) (int, error)
	CreateAdmin(ctx context.Context, a *domain.Admin) (int64, error)
	GetAdminByUsername(ctx context.Context, username string) (*domain.Admin, error)
}
