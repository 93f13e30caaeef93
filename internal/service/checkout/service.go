// Package checkout prices a booking and opens a hosted checkout with the
// active payment provider. Nothing is reserved: capacity is only checked
// here so that customers are not sent to pay for a sold-out event.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chobbledotcom/tickets-sub006/internal/domain"
	"github.com/chobbledotcom/tickets-sub006/internal/payment"
	"github.com/chobbledotcom/tickets-sub006/internal/repository"
	redisrepo "github.com/chobbledotcom/tickets-sub006/internal/repository/redis"
	"github.com/chobbledotcom/tickets-sub006/internal/service/registration"
	"github.com/chobbledotcom/tickets-sub006/internal/uow"
)

type Limiter interface {
	Allow(ctx context.Context, id string) (redisrepo.Decision, error)
}

type Config struct {
	Now func() time.Time
}

type Checkout struct {
	Provider    payment.Provider `json:"provider"`
	SessionID   string           `json:"session_id"`
	CheckoutURL string           `json:"checkout_url"`
	Total       decimal.Decimal  `json:"total"`
}

type Service struct {
	uow      uow.Runner
	gateways *payment.Registry
	limiter  Limiter
	log      *slog.Logger
	now      func() time.Time
}

func New(
	u uow.Runner,
	gateways *payment.Registry,
	limiter Limiter,
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
		gateways: gateways,
		limiter:  limiter,
		log:      log,
		now:      cfg.Now,
	}
}

// CreateCheckout opens a checkout for one paid event.
//
// Parameters:
//   - ctx: request-scoped context.
//   - in: event, quantity, date and contact details.
//   - rlKey: rate limit identity, usually the client IP. Empty disables the
//     limit.
//
// Returns:
//   - *Checkout: the provider session and the URL to send the customer to.
//   - error: *checkout.RateLimitedError (matches ErrRateLimited).
//   - error: checkout.ErrFreeEvent for events without a price.
//   - error: registration eligibility sentinels or *registration.CapacityError.
//   - error: payment.ErrProviderUnavailable or payment.ErrMetadataTooLong.
func (s *Service) CreateCheckout(ctx context.Context, in payment.Intent, rlKey string) (*Checkout, error) {
	const op = "service.checkout.CreateCheckout"

	co, err := s.create(ctx, []payment.Item{in.Item}, in.Contact, rlKey)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return co, nil
}

// CreateMultiCheckout opens one checkout covering several events.
func (s *Service) CreateMultiCheckout(
	ctx context.Context,
	items []payment.Item,
	contact domain.Contact,
	rlKey string,
) (*Checkout, error) {
	const op = "service.checkout.CreateMultiCheckout"

	co, err := s.create(ctx, items, contact, rlKey)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return co, nil
}

func (s *Service) create(
	ctx context.Context,
	items []payment.Item,
	contact domain.Contact,
	rlKey string,
) (*Checkout, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCheckout
	}

	contact.Name = strings.TrimSpace(contact.Name)
	contact.Email = strings.TrimSpace(contact.Email)
	if contact.Name == "" || !strings.Contains(contact.Email, "@") {
		return nil, ErrContactRequired
	}

	if err := s.allow(ctx, rlKey); err != nil {
		return nil, err
	}

	events, lines, total, err := s.quote(ctx, items)
	if err != nil {
		return nil, err
	}

	gw := s.gateways.Active()

	var cs *payment.CheckoutSession
	if len(items) == 1 {
		cs, err = gw.CreateCheckoutSession(ctx, events[0], payment.Intent{Item: items[0], Contact: contact})
	} else {
		cs, err = gw.CreateMultiCheckoutSession(ctx, payment.MultiIntent{Items: items, Lines: lines, Contact: contact})
	}
	if err != nil {
		return nil, err
	}

	s.log.Info("checkout created",
		slog.String("provider", string(gw.Provider())),
		slog.String("session_id", cs.SessionID),
		slog.Int("items", len(items)),
		slog.String("total", total.StringFixed(2)),
	)

	return &Checkout{
		Provider:    gw.Provider(),
		SessionID:   cs.SessionID,
		CheckoutURL: cs.CheckoutURL,
		Total:       total,
	}, nil
}

func (s *Service) allow(ctx context.Context, rlKey string) error {
	if s.limiter == nil || rlKey == "" {
		return nil
	}

	d, err := s.limiter.Allow(ctx, rlKey)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return &RateLimitedError{RetryAfter: d.RetryAfter}
	}

	return nil
}

// quote validates every item and prices it. events and lines are parallel
// to items.
func (s *Service) quote(
	ctx context.Context,
	items []payment.Item,
) ([]*domain.Event, []payment.LineItem, decimal.Decimal, error) {
	events := make([]*domain.Event, len(items))
	lines := make([]payment.LineItem, len(items))
	total := decimal.Zero

	err := s.uow.Read(ctx, func(ctx context.Context, tx uow.Tx) error {
		byID := make(map[int64]*domain.Event)
		var holidays []domain.Holiday
		holidaysLoaded := false

		type slot struct {
			eventID int64
			date    string
		}
		demand := make(map[slot]int)

		for i, it := range items {
			ev, ok := byID[it.EventID]
			if !ok {
				var err error
				ev, err = tx.Events().Get(ctx, it.EventID)
				if err != nil {
					if errors.Is(err, repository.ErrNotFound) {
						return registration.ErrEventNotFound
					}
					return err
				}
				byID[it.EventID] = ev
			}

			if !ev.IsPaid() {
				return ErrFreeEvent
			}

			if ev.IsDaily() && !holidaysLoaded {
				var err error
				if holidays, err = tx.Holidays().List(ctx); err != nil {
					return err
				}
				holidaysLoaded = true
			}

			if err := registration.Eligible(ev, holidays, it.Date, it.Quantity, s.now()); err != nil {
				return err
			}

			demand[slot{it.EventID, it.Date}] += it.Quantity

			name := ev.Name
			if it.Date != "" {
				name += " (" + it.Date + ")"
			}

			events[i] = ev
			lines[i] = payment.LineItem{Name: name, UnitPrice: *ev.UnitPrice, Quantity: it.Quantity}
			total = total.Add(ev.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
		}

		for k, q := range demand {
			committed, err := tx.Attendees().CommittedQuantity(ctx, k.eventID, k.date)
			if err != nil {
				return err
			}

			capacity := byID[k.eventID].MaxAttendees
			if committed+q > capacity {
				return &registration.CapacityError{
					EventID:   k.eventID,
					Date:      k.date,
					Requested: q,
					Remaining: max(capacity-committed, 0),
				}
			}
		}

		return nil
	})
	if err != nil {
		return nil, nil, decimal.Zero, err
	}

	return events, lines, total, nil
}
