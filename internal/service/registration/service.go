// Package registration turns a booking into attendee rows without ever
// exceeding an event's capacity.
package registration

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/chobbledotcom/tickets-sub006/internal/domain"
	"github.com/chobbledotcom/tickets-sub006/internal/metrics"
	"github.com/chobbledotcom/tickets-sub006/internal/notify"
	"github.com/chobbledotcom/tickets-sub006/internal/payment"
	"github.com/chobbledotcom/tickets-sub006/internal/repository"
	"github.com/chobbledotcom/tickets-sub006/internal/uow"
)

type Encrypter interface {
	EncryptContact(ctx context.Context, c domain.Contact) (domain.Contact, error)
}

type Cache interface {
	InvalidateEvent(ctx context.Context, eventID int64) error
}

type Publisher interface {
	PublishEventChanged(ctx context.Context, eventID int64) error
}

type Notifier interface {
	Dispatch(url string, p notify.Payload)
}

type Config struct {
	// Now is the clock used for date eligibility.
	Now func() time.Time
}

// Input is one registration request.
type Input struct {
	EventID  int64
	Date     string
	Quantity int
	Contact  domain.Contact
	// PaymentID is the provider payment reference, empty for free events.
	// Provider names the gateway that holds it, for refunds.
	PaymentID string
	Provider  payment.Provider
	// SessionID is forwarded to the organizer notification.
	SessionID string
	// Prevalidated skips the active, max_quantity and date-window checks.
	// Settlement sets it: the customer already paid against a checkout that
	// was validated when it was created.
	Prevalidated bool
}

type Registration struct {
	Attendee  *domain.Attendee
	Event     *domain.Event
	Committed int
}

type Service struct {
	uow      uow.Runner
	enc      Encrypter
	cache    Cache
	pubsub   Publisher
	notifier Notifier
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time
}

func New(
	u uow.Runner,
	enc Encrypter,
	cache Cache,
	pubsub Publisher,
	notifier Notifier,
	m *metrics.Metrics,
	log *slog.Logger,
	cfg Config,
) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Service{
		uow:      u,
		enc:      enc,
		cache:    cache,
		pubsub:   pubsub,
		notifier: notifier,
		metrics:  m,
		log:      log,
		now:      cfg.Now,
	}
}

// Register books in.Quantity places in its own transaction.
//
// Parameters:
//   - ctx: request-scoped context.
//   - in: the registration request.
//
// Returns:
//   - *Registration: the stored attendee (PII as ciphertext) and the event.
//   - error: *registration.CapacityError (matches ErrCapacityExceeded) when
//     the event or date is full.
//   - error: one of the eligibility sentinels when the request is refused.
func (s *Service) Register(ctx context.Context, in Input) (*Registration, error) {
	const op = "service.registration.Register"

	var reg *Registration
	err := s.uow.Do(ctx, func(ctx context.Context, tx uow.Tx, after func(uow.AfterCommit)) error {
		var err error
		reg, err = s.RegisterTx(ctx, tx, after, in)
		return err
	})

	switch {
	case err == nil:
		s.metrics.Registration("ok")
	case errors.Is(err, ErrCapacityExceeded):
		s.metrics.Registration("capacity_exceeded")
	case IsRejection(err):
		s.metrics.Registration("rejected")
	default:
		s.metrics.Registration("error")
	}
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return reg, nil
}

// RegisterTx registers inside the caller's transaction. The event row is
// locked until tx ends, so concurrent registrations for one event run one
// after another and the conditional insert sees every committed row.
func (s *Service) RegisterTx(
	ctx context.Context,
	tx uow.Tx,
	after func(uow.AfterCommit),
	in Input,
) (*Registration, error) {
	const op = "service.registration.RegisterTx"

	if in.Quantity <= 0 {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidQuantity)
	}

	ev, err := s.lockEvent(ctx, tx, in.EventID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if err := s.checkEligible(ctx, tx, ev, in); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	contact, err := s.enc.EncryptContact(ctx, in.Contact)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	a := &domain.Attendee{
		EventID:             ev.ID,
		Name:                contact.Name,
		Email:               contact.Email,
		Phone:               contact.Phone,
		Address:             contact.Address,
		SpecialInstructions: contact.SpecialInstructions,
		Quantity:            in.Quantity,
		Date:                in.Date,
		TicketToken:         uuid.NewString(),
		PaymentID:           in.PaymentID,
		PaymentProvider:     string(in.Provider),
		Created:             s.now().UTC(),
	}

	a.ID, err = tx.Attendees().InsertWithinCapacity(ctx, a, ev.MaxAttendees)
	if err != nil {
		if errors.Is(err, repository.ErrCapacityExceeded) {
			return nil, fmt.Errorf("%s:%w", op, s.capacityError(ctx, tx, ev, in.Date, in.Quantity))
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	total, err := tx.Attendees().CommittedQuantity(ctx, ev.ID, in.Date)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	after(func(ctx context.Context) {
		s.afterRegister(ctx, ev, a, total, in.SessionID)
	})

	return &Registration{Attendee: a, Event: ev, Committed: total}, nil
}

// CheckCapacityTx verifies that every input fits, without inserting. Events
// are locked in ascending id order so that two multi-event settlements cannot
// deadlock on each other. Quantities for the same event and date are summed.
//
// Returns:
//   - error: *registration.CapacityError for the first shortfall.
//   - error: registration.ErrEventNotFound when an event is missing.
func (s *Service) CheckCapacityTx(ctx context.Context, tx uow.Tx, ins []Input) error {
	const op = "service.registration.CheckCapacityTx"

	type slot struct {
		eventID int64
		date    string
	}

	demand := make(map[slot]int)
	var slots []slot
	for _, in := range ins {
		k := slot{in.EventID, in.Date}
		if _, ok := demand[k]; !ok {
			slots = append(slots, k)
		}
		demand[k] += in.Quantity
	}

	slices.SortFunc(slots, func(a, b slot) int {
		if c := cmp.Compare(a.eventID, b.eventID); c != 0 {
			return c
		}
		return cmp.Compare(a.date, b.date)
	})

	events := make(map[int64]*domain.Event)
	for _, k := range slots {
		ev, ok := events[k.eventID]
		if !ok {
			var err error
			ev, err = s.lockEvent(ctx, tx, k.eventID)
			if err != nil {
				return fmt.Errorf("%s:%w", op, err)
			}
			events[k.eventID] = ev
		}

		committed, err := tx.Attendees().CommittedQuantity(ctx, k.eventID, k.date)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		if committed+demand[k] > ev.MaxAttendees {
			return fmt.Errorf("%s:%w", op, &CapacityError{
				EventID:   k.eventID,
				Date:      k.date,
				Requested: demand[k],
				Remaining: max(ev.MaxAttendees-committed, 0),
			})
		}
	}

	return nil
}

func (s *Service) lockEvent(ctx context.Context, tx uow.Tx, id int64) (*domain.Event, error) {
	ev, err := tx.Events().GetForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return ev, nil
}

func (s *Service) checkEligible(ctx context.Context, tx uow.Tx, ev *domain.Event, in Input) error {
	if in.Prevalidated {
		return checkDateShape(ev, in.Date)
	}

	if ev.IsPaid() && in.PaymentID == "" {
		return ErrPaymentRequired
	}

	var holidays []domain.Holiday
	if ev.IsDaily() {
		var err error
		if holidays, err = tx.Holidays().List(ctx); err != nil {
			return err
		}
	}

	return Eligible(ev, holidays, in.Date, in.Quantity, s.now())
}

// Eligible reports whether quantity places on date can be sold for ev
// today. Capacity is not checked.
func Eligible(ev *domain.Event, holidays []domain.Holiday, date string, quantity int, today time.Time) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if err := checkDateShape(ev, date); err != nil {
		return err
	}
	if !ev.Active {
		return ErrEventInactive
	}
	if ev.MaxQuantity > 0 && quantity > ev.MaxQuantity {
		return ErrQuantityTooLarge
	}
	if ev.IsDaily() && !domain.IsBookable(ev, holidays, today, date) {
		return ErrDateUnavailable
	}

	return nil
}

func checkDateShape(ev *domain.Event, date string) error {
	if !ev.IsDaily() {
		if date != "" {
			return ErrDateNotAllowed
		}
		return nil
	}

	if date == "" {
		return ErrDateRequired
	}
	if _, err := time.Parse(domain.DateLayout, date); err != nil {
		return ErrDateUnavailable
	}

	return nil
}

func (s *Service) capacityError(ctx context.Context, tx uow.Tx, ev *domain.Event, date string, q int) error {
	ce := &CapacityError{EventID: ev.ID, Date: date, Requested: q}
	if committed, err := tx.Attendees().CommittedQuantity(ctx, ev.ID, date); err == nil {
		ce.Remaining = max(ev.MaxAttendees-committed, 0)
	}
	return ce
}

func (s *Service) afterRegister(ctx context.Context, ev *domain.Event, a *domain.Attendee, total int, sessionID string) {
	if s.cache != nil {
		if err := s.cache.InvalidateEvent(ctx, ev.ID); err != nil {
			s.log.Warn("invalidate availability cache",
				slog.Int64("event_id", ev.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.pubsub != nil {
		if err := s.pubsub.PublishEventChanged(ctx, ev.ID); err != nil {
			s.log.Warn("publish availability change",
				slog.Int64("event_id", ev.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.notifier != nil && ev.WebhookURL != "" {
		s.notifier.Dispatch(ev.WebhookURL, notify.Payload{
			EventID:        ev.ID,
			AttendeeID:     a.ID,
			Quantity:       a.Quantity,
			Date:           a.Date,
			AttendeesTotal: total,
			MaxAttendees:   ev.MaxAttendees,
			SessionID:      sessionID,
		})
	}
}
