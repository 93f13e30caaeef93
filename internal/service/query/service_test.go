package query

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chobbledotcom/tickets-sub006/internal/domain"
	redisrepo "github.com/chobbledotcom/tickets-sub006/internal/repository/redis"
	"github.com/chobbledotcom/tickets-sub006/internal/testkit/memstore"
	"github.com/chobbledotcom/tickets-sub006/internal/uow"
)

var today = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC) // a Monday

func seedAttendee(t *testing.T, store *memstore.Store, eventID int64, date string, q int) {
	t.Helper()
	require.NoError(t, store.Do(context.Background(), func(ctx context.Context, tx uow.Tx, _ func(uow.AfterCommit)) error {
		_, err := tx.Attendees().InsertWithinCapacity(ctx, &domain.Attendee{
			EventID:     eventID,
			Quantity:    q,
			Date:        date,
			TicketToken: t.Name() + date,
		}, 100)
		return err
	}))
}

func TestAvailability(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	s := New(store, nil, Config{Now: func() time.Time { return today }})

	std := store.SeedEvent(domain.Event{Name: "Gig", Slug: "gig", Kind: domain.EventStandard, MaxAttendees: 5, Active: true})
	daily := store.SeedEvent(domain.Event{Name: "Swim", Slug: "swim", Kind: domain.EventDaily, MaxAttendees: 3, Active: true})

	seedAttendee(t, store, std, "", 2)
	seedAttendee(t, store, daily, "2026-06-02", 3)

	av, err := s.Availability(ctx, std, "")
	require.NoError(t, err)
	assert.Equal(t, domain.Availability{EventID: std, Capacity: 5, Committed: 2, Remaining: 3}, *av)

	av, err = s.Availability(ctx, daily, "2026-06-02")
	require.NoError(t, err)
	assert.Equal(t, 0, av.Remaining)

	av, err = s.Availability(ctx, daily, "2026-06-03")
	require.NoError(t, err)
	assert.Equal(t, 3, av.Remaining)

	_, err = s.Availability(ctx, daily, "")
	assert.ErrorIs(t, err, ErrDateRequired)

	_, err = s.Availability(ctx, std, "2026-06-02")
	assert.ErrorIs(t, err, ErrDateNotAllowed)

	_, err = s.Availability(ctx, 404, "")
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestAvailability_ServedFromCache(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()

	store := memstore.New()
	s := New(store, redisrepo.New(db), Config{})

	cached, err := json.Marshal(domain.Availability{EventID: 9, Capacity: 10, Committed: 4, Remaining: 6})
	require.NoError(t, err)
	mock.ExpectGet(redisrepo.KeyEventAvailability(9, "")).SetVal(string(cached))

	av, err := s.Availability(context.Background(), 9, "")
	require.NoError(t, err)
	assert.Equal(t, 6, av.Remaining)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookableDates(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	s := New(store, nil, Config{Now: func() time.Time { return today }})

	daily := store.SeedEvent(domain.Event{
		Name:          "Swim",
		Slug:          "swim",
		Kind:          domain.EventDaily,
		MaxAttendees:  3,
		MinDaysNotice: 1,
		MaxDaysAhead:  7,
		BookableDays:  []time.Weekday{time.Tuesday, time.Wednesday, time.Saturday},
		Active:        true,
	})
	std := store.SeedEvent(domain.Event{Name: "Gig", Slug: "gig", Kind: domain.EventStandard, MaxAttendees: 5, Active: true})

	require.NoError(t, store.Do(ctx, func(ctx context.Context, tx uow.Tx, _ func(uow.AfterCommit)) error {
		_, err := tx.Holidays().Create(ctx, &domain.Holiday{Name: "Closed", StartDate: "2026-06-03", EndDate: "2026-06-03"})
		return err
	}))

	dates, err := s.BookableDates(ctx, daily)
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-06-02", "2026-06-06"}, dates)

	dates, err = s.BookableDates(ctx, std)
	require.NoError(t, err)
	assert.Empty(t, dates)
	assert.NotNil(t, dates)

	_, err = s.BookableDates(ctx, 404)
	assert.ErrorIs(t, err, ErrEventNotFound)
}
