package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chobbledotcom/tickets-sub006/internal/domain"
	"github.com/chobbledotcom/tickets-sub006/internal/repository"
	redisrepo "github.com/chobbledotcom/tickets-sub006/internal/repository/redis"
	"github.com/chobbledotcom/tickets-sub006/internal/uow"
)

type Config struct {
	AvailabilityTTL time.Duration
	DatesTTL        time.Duration
	Now             func() time.Time
}

type Service struct {
	uow   uow.Runner
	cache *redisrepo.Cache
	cfg   Config
}

// New builds the read side. A nil cache reads straight from storage.
func New(u uow.Runner, cache *redisrepo.Cache, cfg Config) *Service {
	if cfg.AvailabilityTTL <= 0 {
		cfg.AvailabilityTTL = 15 * time.Second
	}

	if cfg.DatesTTL <= 0 {
		cfg.DatesTTL = 5 * time.Minute
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		uow:   u,
		cache: cache,
		cfg:   cfg,
	}
}

// GetEvent retrieves an event by its ID.
//
// Returns:
//   - error: query.ErrEventNotFound if the event is not found.
func (s *Service) GetEvent(ctx context.Context, id int64) (*domain.Event, error) {
	const op = "service.query.GetEvent"

	var ev *domain.Event
	err := s.uow.Read(ctx, func(ctx context.Context, tx uow.Tx) error {
		var err error
		ev, err = tx.Events().Get(ctx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrEventNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return ev, nil
}

// Availability returns capacity and committed quantity for an event, or for
// one date of a daily event. Results are cached briefly; registrations drop
// the cached entries of their event.
//
// Parameters:
//   - ctx: request-scoped context.
//   - eventID: ID of the event.
//   - date: YYYY-MM-DD for daily events, empty for standard ones.
//
// Returns:
//   - *domain.Availability: the counters.
//   - error: query.ErrEventNotFound if the event is not found.
//   - error: query.ErrDateRequired, ErrDateNotAllowed or ErrInvalidDate when
//     date does not match the event kind.
func (s *Service) Availability(ctx context.Context, eventID int64, date string) (*domain.Availability, error) {
	const op = "service.query.Availability"

	load := func(ctx context.Context) (domain.Availability, error) {
		var av domain.Availability

		err := s.uow.Read(ctx, func(ctx context.Context, tx uow.Tx) error {
			ev, err := tx.Events().Get(ctx, eventID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return ErrEventNotFound
				}
				return err
			}

			if err := checkDate(ev, date); err != nil {
				return err
			}

			committed, err := tx.Attendees().CommittedQuantity(ctx, eventID, date)
			if err != nil {
				return err
			}

			av = domain.Availability{
				EventID:   eventID,
				Date:      date,
				Capacity:  ev.MaxAttendees,
				Committed: committed,
				Remaining: max(ev.MaxAttendees-committed, 0),
			}

			return nil
		})

		return av, err
	}

	var (
		av  domain.Availability
		err error
	)
	if s.cache == nil {
		av, err = load(ctx)
	} else {
		av, err = redisrepo.GetOrSetJSON(ctx, s.cache, redisrepo.KeyEventAvailability(eventID, date), s.cfg.AvailabilityTTL, load)
	}
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &av, nil
}

// BookableDates lists the dates a daily event can currently be booked for.
// Standard events have none.
//
// Returns:
//   - error: query.ErrEventNotFound if the event is not found.
func (s *Service) BookableDates(ctx context.Context, eventID int64) ([]string, error) {
	const op = "service.query.BookableDates"

	load := func(ctx context.Context) ([]string, error) {
		var dates []string

		err := s.uow.Read(ctx, func(ctx context.Context, tx uow.Tx) error {
			ev, err := tx.Events().Get(ctx, eventID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return ErrEventNotFound
				}
				return err
			}

			if !ev.IsDaily() {
				return nil
			}

			holidays, err := tx.Holidays().List(ctx)
			if err != nil {
				return err
			}

			dates = domain.BookableDates(ev, holidays, s.cfg.Now())

			return nil
		})

		return dates, err
	}

	var (
		dates []string
		err   error
	)
	if s.cache == nil {
		dates, err = load(ctx)
	} else {
		dates, err = redisrepo.GetOrSetJSON(ctx, s.cache, redisrepo.KeyEventDates(eventID), s.cfg.DatesTTL, load)
	}
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if dates == nil {
		dates = []string{}
	}

	return dates, nil
}

func checkDate(ev *domain.Event, date string) error {
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
		return ErrInvalidDate
	}

	return nil
}
