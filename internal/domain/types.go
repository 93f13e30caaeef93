package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventKind string

const (
	EventStandard EventKind = "standard"
	EventDaily    EventKind = "daily"
)

// DateLayout is the storage format of booked dates and holiday bounds.
const DateLayout = "2006-01-02"

type Event struct {
	ID            int64
	Name          string
	Slug          string
	Kind          EventKind
	MaxAttendees  int
	MaxQuantity   int              // 0 means no per-purchase limit
	UnitPrice     *decimal.Decimal // nil for free events
	EventDate     string           // standard events only, informational
	MinDaysNotice int
	MaxDaysAhead  int
	BookableDays  []time.Weekday // daily events; empty means every day
	WebhookURL    string
	Active        bool
	Created       time.Time
}

func (e *Event) IsDaily() bool {
	return e.Kind == EventDaily
}

func (e *Event) IsPaid() bool {
	return e.UnitPrice != nil && e.UnitPrice.IsPositive()
}

// Holiday is an inclusive range of dates on which daily events cannot be booked.
type Holiday struct {
	ID        int64
	Name      string
	StartDate string
	EndDate   string
}

// Contact holds attendee PII. It is only ever plaintext in memory.
type Contact struct {
	Name                string
	Email               string
	Phone               string
	Address             string
	SpecialInstructions string
}

// Attendee is the stored row. PII fields hold ciphertext.
type Attendee struct {
	ID                  int64
	EventID             int64
	Name                string
	Email               string
	Phone               string
	Address             string
	SpecialInstructions string
	Quantity            int
	Date                string // empty unless the event is daily
	TicketToken         string
	PaymentID           string
	PaymentProvider     string // gateway that took PaymentID
	Refunded            bool
	CheckedIn           bool
	Created             time.Time
}

// DecryptedAttendee is what admin views render.
type DecryptedAttendee struct {
	Attendee
	Contact Contact
}

type Ticket struct {
	AttendeeID  int64  `json:"attendee_id"`
	EventID     int64  `json:"event_id"`
	Quantity    int    `json:"quantity"`
	Date        string `json:"date,omitempty"`
	TicketToken string `json:"ticket_token"`
}

func (a *Attendee) Ticket() Ticket {
	return Ticket{
		AttendeeID:  a.ID,
		EventID:     a.EventID,
		Quantity:    a.Quantity,
		Date:        a.Date,
		TicketToken: a.TicketToken,
	}
}

// ProcessedPayment is an idempotency claim. AttendeeID is zero when the
// settlement ended in an anomaly.
type ProcessedPayment struct {
	SessionID   string
	AttendeeID  int64
	ProcessedAt time.Time
}

// PaymentAnomaly records a paid checkout that could not be turned into
// attendees because capacity ran out between checkout and settlement.
type PaymentAnomaly struct {
	SessionID        string    `json:"provider_session_id"`
	PaymentReference string    `json:"payment_reference"`
	Provider         string    `json:"provider"`
	EventIDs         []int64   `json:"event_ids"`
	Quantity         int       `json:"quantity"`
	Reason           string    `json:"reason"`
	DetectedAt       time.Time `json:"detected_at"`
	Resolved         bool      `json:"resolved"`
}

// KeySet is the persisted half of the envelope: a public key for sealing PII
// and the matching private key sealed under the shared data key.
type KeySet struct {
	PublicKey        string
	SealedPrivateKey string
	Created          time.Time
}

type Admin struct {
	ID             int64
	Username       string
	PasswordHash   string
	KEKSalt        string
	WrappedDataKey string
	Created        time.Time
}

type Availability struct {
	EventID   int64  `json:"event_id"`
	Date      string `json:"date,omitempty"`
	Capacity  int    `json:"capacity"`
	Committed int    `json:"committed"`
	Remaining int    `json:"remaining"`
}
