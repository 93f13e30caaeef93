package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chobbledotcom/tickets-sub006/internal/domain"
	"github.com/chobbledotcom/tickets-sub006/internal/repository"
	"github.com/chobbledotcom/tickets-sub006/internal/uow"
)

func TestDo_RollbackDiscardsWrites(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Do(ctx, func(ctx context.Context, tx uow.Tx, _ func(uow.AfterCommit)) error {
		_, err := tx.Events().Create(ctx, &domain.Event{Slug: "a", MaxAttendees: 1})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = s.Read(ctx, func(ctx context.Context, tx uow.Tx) error {
		_, err := tx.Events().Get(ctx, 1)
		return err
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Equal(t, 0, s.Commits())
}

func TestDo_AfterHooksRunOnlyOnCommit(t *testing.T) {
	s := New()
	ctx := context.Background()
	ran := 0

	require.NoError(t, s.Do(ctx, func(ctx context.Context, tx uow.Tx, after func(uow.AfterCommit)) error {
		after(func(context.Context) { ran++ })
		return nil
	}))

	s.FailNextCommit(errors.New("commit failed"))
	require.Error(t, s.Do(ctx, func(ctx context.Context, tx uow.Tx, after func(uow.AfterCommit)) error {
		after(func(context.Context) { ran++ })
		return nil
	}))

	assert.Equal(t, 1, ran)
}

func TestPayments_ClaimIsUnique(t *testing.T) {
	s := New()
	ctx := context.Background()

	var first, second bool
	require.NoError(t, s.Do(ctx, func(ctx context.Context, tx uow.Tx, _ func(uow.AfterCommit)) error {
		var err error
		first, err = tx.Payments().Claim(ctx, "cs_1", 0)
		return err
	}))
	require.NoError(t, s.Do(ctx, func(ctx context.Context, tx uow.Tx, _ func(uow.AfterCommit)) error {
		var err error
		second, err = tx.Payments().Claim(ctx, "cs_1", 0)
		return err
	}))

	assert.True(t, first)
	assert.False(t, second)
}

func TestAttendees_InsertWithinCapacity(t *testing.T) {
	s := New()
	ctx := context.Background()
	id := s.SeedEvent(domain.Event{Slug: "e", Kind: domain.EventDaily, MaxAttendees: 3})

	insert := func(date, token string, q int) error {
		return s.Do(ctx, func(ctx context.Context, tx uow.Tx, _ func(uow.AfterCommit)) error {
			_, err := tx.Attendees().InsertWithinCapacity(ctx, &domain.Attendee{
				EventID: id, Date: date, Quantity: q, TicketToken: token,
			}, 3)
			return err
		})
	}

	require.NoError(t, insert("2026-06-01", "t1", 3))
	assert.ErrorIs(t, insert("2026-06-01", "t2", 1), repository.ErrCapacityExceeded)
	require.NoError(t, insert("2026-06-02", "t3", 1))
	assert.ErrorIs(t, insert("2026-06-02", "t3", 1), repository.ErrConflict)

	assert.Equal(t, 3, s.Committed(id, "2026-06-01"))
	assert.Equal(t, 4, s.Committed(id, ""))
}

func TestRead_RejectsWrites(t *testing.T) {
	s := New()

	err := s.Read(context.Background(), func(ctx context.Context, tx uow.Tx) error {
		_, err := tx.Payments().Claim(ctx, "cs_1", 0)
		return err
	})

	assert.ErrorIs(t, err, errReadOnly)
}

func TestIDs_CountPerTable(t *testing.T) {
	s := New()
	ctx := context.Background()

	first := s.SeedEvent(domain.Event{Slug: "a", MaxAttendees: 5})

	var attendeeID, adminID int64
	require.NoError(t, s.Do(ctx, func(ctx context.Context, tx uow.Tx, _ func(uow.AfterCommit)) error {
		var err error
		attendeeID, err = tx.Attendees().InsertWithinCapacity(ctx, &domain.Attendee{
			EventID: first, Quantity: 1, TicketToken: "t1",
		}, 5)
		if err != nil {
			return err
		}
		adminID, err = tx.Keys().CreateAdmin(ctx, &domain.Admin{Username: "root"})
		return err
	}))

	second := s.SeedEvent(domain.Event{Slug: "b", MaxAttendees: 5})

	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(2), second)
	assert.Equal(t, int64(1), attendeeID)
	assert.Equal(t, int64(1), adminID)
}
