package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/chobbledotcom/tickets-sub006/internal/domain"
	"github.com/chobbledotcom/tickets-sub006/internal/payment"
	"github.com/chobbledotcom/tickets-sub006/internal/repository"
	"github.com/chobbledotcom/tickets-sub006/internal/uow"
)

type Cache interface {
	InvalidateEvent(ctx context.Context, eventID int64) error
	InvalidateDates(ctx context.Context) error
}

type Publisher interface {
	PublishEventChanged(ctx context.Context, eventID int64) error
}

type Service struct {
	uow      uow.Runner
	cache    Cache
	pubsub   Publisher
	gateways *payment.Registry
	log      *slog.Logger

	mu         sync.Mutex
	endpointID string
}

func New(
	u uow.Runner,
	cache Cache,
	pubsub Publisher,
	gateways *payment.Registry,
	log *slog.Logger,
) *Service {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Service{
		uow:      u,
		cache:    cache,
		pubsub:   pubsub,
		gateways: gateways,
		log:      log,
	}
}

// CreateEvent validates and stores an event. An empty slug is derived from
// the name; a zero price makes the event free.
//
// Parameters:
//   - ctx: request-scoped context.
//   - ev: the event to create; ID and Created are ignored.
//
// Returns:
//   - int64: the created event ID.
//   - error: admin.ErrInvalidEvent if a field is out of range.
//   - error: admin.ErrEventConflict if the slug is taken.
func (s *Service) CreateEvent(ctx context.Context, ev *domain.Event) (int64, error) {
	const op = "service.admin.CreateEvent"

	if err := normalizeEvent(ev); err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	var id int64
	err := s.uow.Do(ctx, func(ctx context.Context, tx uow.Tx, after func(uow.AfterCommit)) error {
		var err error
		id, err = tx.Events().Create(ctx, ev)
		if err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrEventConflict
			}
			return err
		}

		after(func(ctx context.Context) {
			if s.cache != nil {
				_ = s.cache.InvalidateEvent(ctx, id)
			}
			if s.pubsub != nil {
				_ = s.pubsub.PublishEventChanged(ctx, id)
			}
		})

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	s.log.Info("event created", slog.Int64("event_id", id), slog.String("slug", ev.Slug))

	return id, nil
}

// AddHoliday stores an inclusive range of closed dates.
//
// Returns:
//   - error: admin.ErrInvalidHoliday if a date is malformed or the range is
//     reversed.
func (s *Service) AddHoliday(ctx context.Context, h *domain.Holiday) (int64, error) {
	const op = "service.admin.AddHoliday"

	h.Name = strings.TrimSpace(h.Name)
	start, err := time.Parse(domain.DateLayout, h.StartDate)
	if err != nil {
		return 0, fmt.Errorf("%s: start_date:%w", op, ErrInvalidHoliday)
	}
	end, err := time.Parse(domain.DateLayout, h.EndDate)
	if err != nil {
		return 0, fmt.Errorf("%s: end_date:%w", op, ErrInvalidHoliday)
	}
	if end.Before(start) {
		return 0, fmt.Errorf("%s: end before start:%w", op, ErrInvalidHoliday)
	}

	var id int64
	err = s.uow.Do(ctx, func(ctx context.Context, tx uow.Tx, after func(uow.AfterCommit)) error {
		var err error
		if id, err = tx.Holidays().Create(ctx, h); err != nil {
			return err
		}

		after(func(ctx context.Context) {
			if s.cache != nil {
				_ = s.cache.InvalidateDates(ctx)
			}
		})

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	return id, nil
}

// SetupWebhook points the active provider's completion notifications at
// endpointURL, replacing the endpoint this process created before.
//
// Returns:
//   - *payment.WebhookSetup: the provider endpoint and signing secret.
//   - error: *payment.ManualSetupError for providers configured by hand.
//   - error: admin.ErrInvalidURL unless endpointURL is absolute https.
func (s *Service) SetupWebhook(ctx context.Context, endpointURL string) (*payment.WebhookSetup, error) {
	const op = "service.admin.SetupWebhook"

	u, err := url.Parse(endpointURL)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidURL)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	gw := s.gateways.Active()
	setup, err := gw.SetupWebhookEndpoint(ctx, "", endpointURL, s.endpointID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s.endpointID = setup.EndpointID
	s.log.Info("webhook endpoint configured",
		slog.String("provider", string(gw.Provider())),
		slog.String("endpoint_id", setup.EndpointID),
	)

	return setup, nil
}

func normalizeEvent(ev *domain.Event) error {
	ev.Name = strings.TrimSpace(ev.Name)
	if ev.Name == "" {
		return fmt.Errorf("name is required:%w", ErrInvalidEvent)
	}

	if ev.Slug == "" {
		ev.Slug = slugify(ev.Name)
	}
	if ev.Slug == "" || ev.Slug != slugify(ev.Slug) {
		return fmt.Errorf("slug %q:%w", ev.Slug, ErrInvalidEvent)
	}

	switch ev.Kind {
	case "":
		ev.Kind = domain.EventStandard
	case domain.EventStandard, domain.EventDaily:
	default:
		return fmt.Errorf("kind %q:%w", ev.Kind, ErrInvalidEvent)
	}

	if ev.MaxAttendees <= 0 {
		return fmt.Errorf("max_attendees must be positive:%w", ErrInvalidEvent)
	}
	if ev.MaxQuantity < 0 || ev.MinDaysNotice < 0 || ev.MaxDaysAhead < 0 {
		return fmt.Errorf("negative limit:%w", ErrInvalidEvent)
	}

	if ev.UnitPrice != nil {
		if ev.UnitPrice.IsNegative() {
			return fmt.Errorf("negative price:%w", ErrInvalidEvent)
		}
		if ev.UnitPrice.IsZero() {
			ev.UnitPrice = nil
		}
	}

	if ev.IsDaily() {
		ev.EventDate = ""
	} else {
		ev.BookableDays = nil
	}

	if ev.WebhookURL != "" {
		if u, err := url.Parse(ev.WebhookURL); err != nil || u.Host == "" ||
			(u.Scheme != "https" && u.Scheme != "http") {
			return fmt.Errorf("webhook_url:%w", ErrInvalidEvent)
		}
	}

	return nil
}

func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
