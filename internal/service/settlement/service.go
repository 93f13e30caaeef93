// Package settlement turns completed provider checkouts into attendees
// exactly once, whichever of the redirect or the webhook arrives first.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chobbledotcom/tickets-sub006/internal/domain"
	"github.com/chobbledotcom/tickets-sub006/internal/metrics"
	"github.com/chobbledotcom/tickets-sub006/internal/payment"
	"github.com/chobbledotcom/tickets-sub006/internal/service/registration"
	"github.com/chobbledotcom/tickets-sub006/internal/uow"
)

type Trigger string

const (
	TriggerRedirect Trigger = "redirect"
	TriggerWebhook  Trigger = "webhook"
)

type Result struct {
	SessionID string          `json:"session_id"`
	Tickets   []domain.Ticket `json:"tickets"`
	// AttendeeID is the first attendee created for the session.
	AttendeeID int64 `json:"attendee_id"`
	// Duplicate is set when the session had already been settled.
	Duplicate bool `json:"duplicate"`
	// Ignored is set for verified webhooks that do not report completion.
	Ignored bool `json:"ignored,omitempty"`
}

type Registrar interface {
	RegisterTx(ctx context.Context, tx uow.Tx, after func(uow.AfterCommit), in registration.Input) (*registration.Registration, error)
	CheckCapacityTx(ctx context.Context, tx uow.Tx, ins []registration.Input) error
}

type Service struct {
	uow      uow.Runner
	gateways *payment.Registry
	reg      Registrar
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time
}

func New(
	u uow.Runner,
	gateways *payment.Registry,
	reg Registrar,
	m *metrics.Metrics,
	log *slog.Logger,
) *Service {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Service{
		uow:      u,
		gateways: gateways,
		reg:      reg,
		metrics:  m,
		log:      log,
		now:      time.Now,
	}
}

// Settle registers the attendees of a paid checkout session.
//
// Parameters:
//   - ctx: request-scoped context.
//   - provider: the provider that owns sessionID.
//   - sessionID: provider checkout session id.
//   - trigger: what delivered the completion, for logs and metrics.
//
// Returns:
//   - *Result: the session's tickets; Duplicate is set when an earlier call
//     already settled it.
//   - error: settlement.ErrPaymentNotCompleted when the session is unpaid.
//   - error: settlement.ErrOversoldAnomaly when capacity ran out after
//     checkout. The session stays claimed and an anomaly is recorded.
//   - error: payment.ErrProviderUnavailable or payment.ErrSessionNotFound.
func (s *Service) Settle(
	ctx context.Context,
	provider payment.Provider,
	sessionID string,
	trigger Trigger,
) (*Result, error) {
	const op = "service.settlement.Settle"

	start := time.Now()
	res, err := s.settle(ctx, provider, sessionID)
	s.metrics.Settlement(string(trigger), outcome(res, err), time.Since(start))

	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s.log.Info("checkout settled",
		slog.String("provider", string(provider)),
		slog.String("session_id", sessionID),
		slog.String("trigger", string(trigger)),
		slog.Int64("attendee_id", res.AttendeeID),
		slog.Bool("duplicate", res.Duplicate),
	)

	return res, nil
}

func (s *Service) settle(ctx context.Context, provider payment.Provider, sessionID string) (*Result, error) {
	gw, err := s.gateways.Get(provider)
	if err != nil {
		return nil, err
	}

	if sessionID == "" {
		return nil, payment.ErrSessionNotFound
	}

	sess, err := gw.RetrieveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Paid() {
		return nil, ErrPaymentNotCompleted
	}

	booking, err := payment.DecodeIntent(sess.Metadata)
	if err != nil {
		return nil, err
	}

	ins := make([]registration.Input, 0, len(booking.Items))
	for _, it := range booking.Items {
		ins = append(ins, registration.Input{
			EventID:      it.EventID,
			Date:         it.Date,
			Quantity:     it.Quantity,
			Contact:      booking.Contact,
			PaymentID:    sess.PaymentReference,
			Provider:     provider,
			SessionID:    sessionID,
			Prevalidated: true,
		})
	}

	var (
		res     *Result
		anomaly *domain.PaymentAnomaly
	)

	err = s.uow.Do(ctx, func(ctx context.Context, tx uow.Tx, after func(uow.AfterCommit)) error {
		res, anomaly = &Result{SessionID: sessionID}, nil

		claimed, err := tx.Payments().Claim(ctx, sessionID, 0)
		if err != nil {
			return err
		}

		if !claimed {
			return s.loadSettled(ctx, tx, res, sess.PaymentReference)
		}

		if err := s.reg.CheckCapacityTx(ctx, tx, ins); err != nil {
			var ce *registration.CapacityError
			if !errors.As(err, &ce) {
				return err
			}

			anomaly = &domain.PaymentAnomaly{
				SessionID:        sessionID,
				PaymentReference: sess.PaymentReference,
				Provider:         string(provider),
				EventIDs:         booking.EventIDs(),
				Quantity:         booking.TotalQuantity(),
				Reason:           ce.Error(),
				DetectedAt:       s.now().UTC(),
			}

			return tx.Anomalies().Record(ctx, anomaly)
		}

		for _, in := range ins {
			r, err := s.reg.RegisterTx(ctx, tx, after, in)
			if err != nil {
				return err
			}
			if res.AttendeeID == 0 {
				res.AttendeeID = r.Attendee.ID
			}
			res.Tickets = append(res.Tickets, r.Attendee.Ticket())
		}

		return tx.Payments().Link(ctx, sessionID, res.AttendeeID)
	})
	if err != nil {
		return nil, err
	}

	if anomaly != nil {
		s.metrics.Oversold()
		s.log.Error("paid checkout exceeds capacity",
			slog.String("provider", string(provider)),
			slog.String("session_id", sessionID),
			slog.Any("event_ids", anomaly.EventIDs),
			slog.Int("quantity", anomaly.Quantity),
			slog.String("reason", anomaly.Reason),
		)
		return nil, ErrOversoldAnomaly
	}

	return res, nil
}

// loadSettled fills res from an earlier settlement of the same session.
func (s *Service) loadSettled(ctx context.Context, tx uow.Tx, res *Result, paymentRef string) error {
	attendeeID, err := tx.Payments().Lookup(ctx, res.SessionID)
	if err != nil {
		return err
	}
	if attendeeID == 0 {
		return ErrOversoldAnomaly
	}

	res.Duplicate = true
	res.AttendeeID = attendeeID

	// Fully discounted checkouts have no payment reference; fall back to the
	// linked attendee alone.
	if paymentRef == "" {
		a, err := tx.Attendees().Get(ctx, attendeeID)
		if err != nil {
			return err
		}
		res.Tickets = []domain.Ticket{a.Ticket()}
		return nil
	}

	attendees, err := tx.Attendees().ListByPaymentID(ctx, paymentRef)
	if err != nil {
		return err
	}
	for i := range attendees {
		res.Tickets = append(res.Tickets, attendees[i].Ticket())
	}

	return nil
}

// HandleWebhook verifies a provider notification and settles the session it
// reports as completed.
//
// Returns:
//   - *Result: Ignored is set for notifications that are not completions.
//   - error: payment.ErrInvalidSignature when verification fails. Nothing
//     else is done in that case.
//   - error: anything Settle returns.
func (s *Service) HandleWebhook(
	ctx context.Context,
	provider payment.Provider,
	payload []byte,
	signature string,
) (*Result, error) {
	const op = "service.settlement.HandleWebhook"

	gw, err := s.gateways.Get(provider)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	ev, err := gw.VerifyWebhookSignature(payload, signature)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			s.metrics.SignatureRejected(string(provider))
			s.log.Warn("webhook signature rejected", slog.String("provider", string(provider)))
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if !ev.Completed || ev.SessionID == "" {
		s.log.Debug("webhook ignored",
			slog.String("provider", string(provider)),
			slog.String("type", ev.Type),
		)
		return &Result{SessionID: ev.SessionID, Ignored: true}, nil
	}

	return s.Settle(ctx, provider, ev.SessionID, TriggerWebhook)
}

func outcome(res *Result, err error) string {
	switch {
	case err == nil && res.Duplicate:
		return "duplicate"
	case err == nil:
		return "settled"
	case errors.Is(err, ErrOversoldAnomaly):
		return "anomaly"
	case errors.Is(err, ErrPaymentNotCompleted):
		return "unpaid"
	case errors.Is(err, payment.ErrProviderUnavailable):
		return "provider_unavailable"
	default:
		return "error"
	}
}
