package httpgin

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chobbledotcom/tickets-sub006/internal/domain"
	"github.com/chobbledotcom/tickets-sub006/internal/payment"
)

type ContactRequest struct {
	Name                string `json:"name" binding:"required"`
	Email               string `json:"email"`
	Phone               string `json:"phone"`
	Address             string `json:"address"`
	SpecialInstructions string `json:"special_instructions"`
}

func (r ContactRequest) toDomain() domain.Contact {
	return domain.Contact{
		Name:                r.Name,
		Email:               r.Email,
		Phone:               r.Phone,
		Address:             r.Address,
		SpecialInstructions: r.SpecialInstructions,
	}
}

type RegisterRequest struct {
	Quantity int            `json:"quantity" binding:"required,gt=0"`
	Date     string         `json:"date"`
	Contact  ContactRequest `json:"contact"`
}

type RegisterResponse struct {
	Ticket    domain.Ticket `json:"ticket"`
	Remaining int           `json:"remaining"`
}

type CheckoutRequest struct {
	Quantity int            `json:"quantity" binding:"required,gt=0"`
	Date     string         `json:"date"`
	Contact  ContactRequest `json:"contact"`
}

type CheckoutItem struct {
	EventID  int64  `json:"event_id" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,gt=0"`
	Date     string `json:"date"`
}

type MultiCheckoutRequest struct {
	Items   []CheckoutItem `json:"items" binding:"required,min=1,dive"`
	Contact ContactRequest `json:"contact"`
}

func (r MultiCheckoutRequest) items() []payment.Item {
	out := make([]payment.Item, 0, len(r.Items))
	for _, it := range r.Items {
		out = append(out, payment.Item{EventID: it.EventID, Quantity: it.Quantity, Date: it.Date})
	}
	return out
}

type CheckoutResponse struct {
	Provider    string `json:"provider"`
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
	Total       string `json:"total"`
}

type EventResponse struct {
	ID            int64    `json:"id"`
	Name          string   `json:"name"`
	Slug          string   `json:"slug"`
	Kind          string   `json:"kind"`
	MaxAttendees  int      `json:"max_attendees"`
	MaxQuantity   int      `json:"max_quantity,omitempty"`
	UnitPrice     *string  `json:"unit_price,omitempty"`
	EventDate     string   `json:"event_date,omitempty"`
	MinDaysNotice int      `json:"min_days_notice,omitempty"`
	MaxDaysAhead  int      `json:"max_days_ahead,omitempty"`
	BookableDays  []string `json:"bookable_days,omitempty"`
	Active        bool     `json:"active"`
}

func newEventResponse(ev *domain.Event) EventResponse {
	r := EventResponse{
		ID:            ev.ID,
		Name:          ev.Name,
		Slug:          ev.Slug,
		Kind:          string(ev.Kind),
		MaxAttendees:  ev.MaxAttendees,
		MaxQuantity:   ev.MaxQuantity,
		EventDate:     ev.EventDate,
		MinDaysNotice: ev.MinDaysNotice,
		MaxDaysAhead:  ev.MaxDaysAhead,
		Active:        ev.Active,
	}
	if ev.IsPaid() {
		p := ev.UnitPrice.StringFixed(2)
		r.UnitPrice = &p
	}
	for _, d := range ev.BookableDays {
		r.BookableDays = append(r.BookableDays, d.String()[:3])
	}
	return r
}

type DatesResponse struct {
	EventID int64    `json:"event_id"`
	Dates   []string `json:"dates"`
}

type SettlementResponse struct {
	SessionID string          `json:"session_id"`
	Tickets   []domain.Ticket `json:"tickets"`
	Duplicate bool            `json:"duplicate"`
}

// WebhookResponse is always sent with 200 once the signature checked out.
type WebhookResponse struct {
	Received  bool   `json:"received"`
	Status    string `json:"status"`
	SessionID string `json:"session_id,omitempty"`
}

type CredentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type CreateAdminResponse struct {
	AdminID int64 `json:"admin_id"`
}

type CreateEventRequest struct {
	Name          string   `json:"name" binding:"required"`
	Slug          string   `json:"slug"`
	Kind          string   `json:"kind" binding:"omitempty,oneof=standard daily"`
	MaxAttendees  int      `json:"max_attendees" binding:"required,gt=0"`
	MaxQuantity   int      `json:"max_quantity" binding:"gte=0"`
	UnitPrice     string   `json:"unit_price"`
	EventDate     string   `json:"event_date"`
	MinDaysNotice int      `json:"min_days_notice" binding:"gte=0"`
	MaxDaysAhead  int      `json:"max_days_ahead" binding:"gte=0"`
	BookableDays  []string `json:"bookable_days"`
	WebhookURL    string   `json:"webhook_url"`
	Active        *bool    `json:"active"`
}

func (r CreateEventRequest) toDomain() (*domain.Event, error) {
	ev := &domain.Event{
		Name:          r.Name,
		Slug:          r.Slug,
		Kind:          domain.EventKind(r.Kind),
		MaxAttendees:  r.MaxAttendees,
		MaxQuantity:   r.MaxQuantity,
		EventDate:     r.EventDate,
		MinDaysNotice: r.MinDaysNotice,
		MaxDaysAhead:  r.MaxDaysAhead,
		WebhookURL:    r.WebhookURL,
		Active:        true,
	}
	if r.Active != nil {
		ev.Active = *r.Active
	}

	if r.UnitPrice != "" {
		p, err := decimal.NewFromString(r.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("invalid unit_price %q", r.UnitPrice)
		}
		ev.UnitPrice = &p
	}

	for _, s := range r.BookableDays {
		days, err := domain.ParseWeekdays(s)
		if err != nil {
			return nil, err
		}
		ev.BookableDays = append(ev.BookableDays, days...)
	}

	return ev, nil
}

type CreateEventResponse struct {
	EventID int64 `json:"event_id"`
}

type CreateHolidayRequest struct {
	Name      string `json:"name" binding:"required"`
	StartDate string `json:"start_date" binding:"required"`
	EndDate   string `json:"end_date" binding:"required"`
}

type CreateHolidayResponse struct {
	HolidayID int64 `json:"holiday_id"`
}

type AttendeeResponse struct {
	ID                  int64     `json:"id"`
	EventID             int64     `json:"event_id"`
	Quantity            int       `json:"quantity"`
	Date                string    `json:"date,omitempty"`
	TicketToken         string    `json:"ticket_token"`
	PaymentID           string    `json:"payment_id,omitempty"`
	PaymentProvider     string    `json:"payment_provider,omitempty"`
	Refunded            bool      `json:"refunded"`
	CheckedIn           bool      `json:"checked_in"`
	Created             time.Time `json:"created"`
	Name                string    `json:"name,omitempty"`
	Email               string    `json:"email,omitempty"`
	Phone               string    `json:"phone,omitempty"`
	Address             string    `json:"address,omitempty"`
	SpecialInstructions string    `json:"special_instructions,omitempty"`
}

// newAttendeeResponse renders a without contact details; those are only
// present on decrypted attendees.
func newAttendeeResponse(a domain.Attendee) AttendeeResponse {
	return AttendeeResponse{
		ID:              a.ID,
		EventID:         a.EventID,
		Quantity:        a.Quantity,
		Date:            a.Date,
		TicketToken:     a.TicketToken,
		PaymentID:       a.PaymentID,
		PaymentProvider: a.PaymentProvider,
		Refunded:        a.Refunded,
		CheckedIn:       a.CheckedIn,
		Created:         a.Created,
	}
}

func newDecryptedAttendeeResponse(a domain.DecryptedAttendee) AttendeeResponse {
	r := newAttendeeResponse(a.Attendee)
	r.Name = a.Contact.Name
	r.Email = a.Contact.Email
	r.Phone = a.Contact.Phone
	r.Address = a.Contact.Address
	r.SpecialInstructions = a.Contact.SpecialInstructions
	return r
}

type ResolveAnomalyRequest struct {
	Refund bool `json:"refund"`
}

type WebhookSetupRequest struct {
	URL string `json:"url" binding:"required"`
}

type WebhookSetupResponse struct {
	EndpointID string `json:"endpoint_id"`
	Secret     string `json:"secret"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
