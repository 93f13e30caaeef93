// Package attendees serves the admin side of registrations: decrypted
// lists, door check-in, refunds and oversold anomalies.
package attendees

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chobbledotcom/tickets-sub006/internal/domain"
	"github.com/chobbledotcom/tickets-sub006/internal/envelope"
	"github.com/chobbledotcom/tickets-sub006/internal/payment"
	"github.com/chobbledotcom/tickets-sub006/internal/repository"
	"github.com/chobbledotcom/tickets-sub006/internal/uow"
)

type Keyring interface {
	NewDecrypter(ctx context.Context, key *envelope.SessionKey) (*envelope.Decrypter, error)
}

type Cache interface {
	InvalidateEvent(ctx context.Context, eventID int64) error
}

type Service struct {
	uow      uow.Runner
	keys     Keyring
	gateways *payment.Registry
	cache    Cache
	log      *slog.Logger
}

func New(
	u uow.Runner,
	keys Keyring,
	gateways *payment.Registry,
	cache Cache,
	log *slog.Logger,
) *Service {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Service{
		uow:      u,
		keys:     keys,
		gateways: gateways,
		cache:    cache,
		log:      log,
	}
}

// List returns an event's attendees with their contact details decrypted.
//
// Parameters:
//   - ctx: request-scoped context.
//   - eventID: the event.
//   - key: the logged-in admin's data key.
//
// Returns:
//   - []domain.DecryptedAttendee: attendees ordered by ID.
//   - error: attendees.ErrEventNotFound if the event does not exist.
//   - error: envelope.ErrDecryptFailed if key does not open the PII.
func (s *Service) List(ctx context.Context, eventID int64, key *envelope.SessionKey) ([]domain.DecryptedAttendee, error) {
	const op = "service.attendees.List"

	var rows []domain.Attendee
	err := s.uow.Read(ctx, func(ctx context.Context, tx uow.Tx) error {
		if _, err := tx.Events().Get(ctx, eventID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrEventNotFound
			}
			return err
		}

		var err error
		rows, err = tx.Attendees().ListByEvent(ctx, eventID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	d, err := s.keys.NewDecrypter(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}
	defer d.Destroy()

	out := make([]domain.DecryptedAttendee, 0, len(rows))
	for _, a := range rows {
		c, err := decryptContact(d, a)
		if err != nil {
			return nil, fmt.Errorf("%s: attendee %d:%w", op, a.ID, err)
		}
		out = append(out, domain.DecryptedAttendee{Attendee: a, Contact: c})
	}

	return out, nil
}

func decryptContact(d *envelope.Decrypter, a domain.Attendee) (domain.Contact, error) {
	var c domain.Contact
	pairs := []struct {
		dst *string
		src string
	}{
		{&c.Name, a.Name},
		{&c.Email, a.Email},
		{&c.Phone, a.Phone},
		{&c.Address, a.Address},
		{&c.SpecialInstructions, a.SpecialInstructions},
	}
	for _, p := range pairs {
		if p.src == "" {
			continue
		}
		pt, err := d.Decrypt(p.src)
		if err != nil {
			return domain.Contact{}, err
		}
		*p.dst = pt
	}

	return c, nil
}

// CheckIn marks an attendee as arrived.
//
// Returns:
//   - error: attendees.ErrAttendeeNotFound, ErrRefunded or ErrAlreadyCheckedIn.
func (s *Service) CheckIn(ctx context.Context, attendeeID int64) (*domain.Attendee, error) {
	const op = "service.attendees.CheckIn"

	a, err := s.checkIn(ctx, func(ctx context.Context, tx uow.Tx) (*domain.Attendee, error) {
		return tx.Attendees().Get(ctx, attendeeID)
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return a, nil
}

// CheckInByToken checks in the attendee holding a ticket token, as scanned
// at the door.
func (s *Service) CheckInByToken(ctx context.Context, token string) (*domain.Attendee, error) {
	const op = "service.attendees.CheckInByToken"

	a, err := s.checkIn(ctx, func(ctx context.Context, tx uow.Tx) (*domain.Attendee, error) {
		return tx.Attendees().GetByToken(ctx, token)
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return a, nil
}

func (s *Service) checkIn(
	ctx context.Context,
	find func(ctx context.Context, tx uow.Tx) (*domain.Attendee, error),
) (*domain.Attendee, error) {
	var a *domain.Attendee

	err := s.uow.Do(ctx, func(ctx context.Context, tx uow.Tx, after func(uow.AfterCommit)) error {
		var err error
		if a, err = find(ctx, tx); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrAttendeeNotFound
			}
			return err
		}

		switch {
		case a.Refunded:
			return ErrRefunded
		case a.CheckedIn:
			return ErrAlreadyCheckedIn
		}

		if err := tx.Attendees().MarkCheckedIn(ctx, a.ID); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrRefunded
			}
			return err
		}
		a.CheckedIn = true

		return nil
	})
	if err != nil {
		return nil, err
	}

	return a, nil
}

// Refund refunds an attendee's payment through the provider that took it and
// marks every attendee settled by that payment as refunded. Refunded
// attendees keep their places in the capacity count.
//
// Returns:
//   - []domain.Attendee: the attendees marked refunded.
//   - error: attendees.ErrNoPaymentReference for free registrations; the
//     provider is not contacted.
//   - error: attendees.ErrAlreadyRefunded, ErrAttendeeNotFound.
//   - error: payment.ErrProviderUnavailable when the provider call fails.
func (s *Service) Refund(ctx context.Context, attendeeID int64) ([]domain.Attendee, error) {
	const op = "service.attendees.Refund"

	var a *domain.Attendee
	err := s.uow.Read(ctx, func(ctx context.Context, tx uow.Tx) error {
		var err error
		a, err = tx.Attendees().Get(ctx, attendeeID)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrAttendeeNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if a.PaymentID == "" {
		return nil, fmt.Errorf("%s:%w", op, ErrNoPaymentReference)
	}
	if a.Refunded {
		return nil, fmt.Errorf("%s:%w", op, ErrAlreadyRefunded)
	}

	gw, err := s.gateways.Holding(payment.Provider(a.PaymentProvider))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}
	if err := gw.RefundPayment(ctx, a.PaymentID); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	var refunded []domain.Attendee
	err = s.uow.Do(ctx, func(ctx context.Context, tx uow.Tx, after func(uow.AfterCommit)) error {
		refunded = nil

		settled, err := tx.Attendees().ListByPaymentID(ctx, a.PaymentID)
		if err != nil {
			return err
		}

		for _, other := range settled {
			if other.Refunded {
				continue
			}
			if err := tx.Attendees().MarkRefunded(ctx, other.ID); err != nil {
				return err
			}
			other.Refunded = true
			refunded = append(refunded, other)
		}

		after(func(ctx context.Context) {
			if s.cache == nil {
				return
			}
			for _, r := range refunded {
				_ = s.cache.InvalidateEvent(ctx, r.EventID)
			}
		})

		return nil
	})
	if err != nil {
		// The provider has already refunded; the row must be fixed by hand.
		s.log.Error("refund issued but not recorded",
			slog.Int64("attendee_id", attendeeID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s.log.Info("attendee refunded", slog.Int64("attendee_id", attendeeID), slog.Int("rows", len(refunded)))

	return refunded, nil
}

// ListAnomalies returns oversold anomalies, oldest first.
func (s *Service) ListAnomalies(ctx context.Context, includeResolved bool) ([]domain.PaymentAnomaly, error) {
	const op = "service.attendees.ListAnomalies"

	var out []domain.PaymentAnomaly
	err := s.uow.Read(ctx, func(ctx context.Context, tx uow.Tx) error {
		var err error
		out, err = tx.Anomalies().List(ctx, includeResolved)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// ResolveAnomaly closes an anomaly after operator follow-up, optionally
// refunding the payment first.
//
// Returns:
//   - error: attendees.ErrAnomalyNotFound, ErrAnomalyResolved.
//   - error: attendees.ErrNoPaymentReference when refund is requested for an
//     anomaly without a payment reference.
func (s *Service) ResolveAnomaly(ctx context.Context, sessionID string, refund bool) error {
	const op = "service.attendees.ResolveAnomaly"

	var an *domain.PaymentAnomaly
	err := s.uow.Read(ctx, func(ctx context.Context, tx uow.Tx) error {
		var err error
		an, err = tx.Anomalies().Get(ctx, sessionID)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s:%w", op, ErrAnomalyNotFound)
		}
		return fmt.Errorf("%s:%w", op, err)
	}

	if an.Resolved {
		return fmt.Errorf("%s:%w", op, ErrAnomalyResolved)
	}

	if refund {
		if an.PaymentReference == "" {
			return fmt.Errorf("%s:%w", op, ErrNoPaymentReference)
		}
		gw, err := s.gateways.Holding(payment.Provider(an.Provider))
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		if err := gw.RefundPayment(ctx, an.PaymentReference); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
	}

	err = s.uow.Do(ctx, func(ctx context.Context, tx uow.Tx, after func(uow.AfterCommit)) error {
		return tx.Anomalies().Resolve(ctx, sessionID)
	})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	s.log.Info("anomaly resolved", slog.String("session_id", sessionID), slog.Bool("refunded", refund))

	return nil
}
