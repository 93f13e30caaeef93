// Package payment defines the provider-neutral checkout contract and the
// booking intent carried through provider metadata.
package payment

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/chobbledotcom/tickets-sub006/internal/domain"
)

type Provider string

const (
	ProviderStripe Provider = "stripe"
	ProviderSquare Provider = "square"
)

// Session statuses after adapter normalization.
const (
	StatusPaid   = "paid"
	StatusUnpaid = "unpaid"
)

// Item is one event booked by a checkout.
type Item struct {
	EventID  int64  `json:"e"`
	Quantity int    `json:"q"`
	Date     string `json:"d,omitempty"`
}

// Intent books a single event.
type Intent struct {
	Item
	Contact domain.Contact
}

// LineItem is what the customer is charged for one item.
type LineItem struct {
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

// MultiIntent books several events in one checkout. Lines is parallel to
// Items.
type MultiIntent struct {
	Items   []Item
	Lines   []LineItem
	Contact domain.Contact
}

// Booking is the intent recovered from a completed session's metadata.
type Booking struct {
	Items   []Item
	Contact domain.Contact
}

// TotalQuantity sums the quantity over all items.
func (b *Booking) TotalQuantity() int {
	n := 0
	for _, it := range b.Items {
		n += it.Quantity
	}
	return n
}

func (b *Booking) EventIDs() []int64 {
	ids := make([]int64, 0, len(b.Items))
	for _, it := range b.Items {
		ids = append(ids, it.EventID)
	}
	return ids
}

type CheckoutSession struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

// Session is a provider checkout as seen at settlement time.
type Session struct {
	ID               string
	PaymentStatus    string
	PaymentReference string
	Metadata         map[string]string
}

func (s *Session) Paid() bool {
	return s.PaymentStatus == StatusPaid
}

// WebhookEvent is a verified provider notification.
type WebhookEvent struct {
	ID        string
	Type      string
	SessionID string
	// Completed is set when the notification reports a paid checkout.
	Completed bool
}

type WebhookSetup struct {
	EndpointID string
	Secret     string
}

// Gateway is implemented by each provider adapter.
type Gateway interface {
	Provider() Provider
	CreateCheckoutSession(ctx context.Context, ev *domain.Event, in Intent) (*CheckoutSession, error)
	CreateMultiCheckoutSession(ctx context.Context, in MultiIntent) (*CheckoutSession, error)
	// RetrieveSession returns ErrSessionNotFound for unknown ids.
	RetrieveSession(ctx context.Context, sessionID string) (*Session, error)
	// VerifyWebhookSignature returns ErrInvalidSignature when payload was not
	// signed with the configured secret.
	VerifyWebhookSignature(payload []byte, signature string) (*WebhookEvent, error)
	RefundPayment(ctx context.Context, paymentReference string) error
	// SetupWebhookEndpoint registers url for completion notifications,
	// replacing existingID when set. Providers that cannot do this through
	// their API return a *ManualSetupError.
	SetupWebhookEndpoint(ctx context.Context, secret, url, existingID string) (*WebhookSetup, error)
}

// MinorUnits converts an amount to the currency's smallest unit, assuming
// two decimal places.
func MinorUnits(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}
