package postgresrepo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chobbledotcom/tickets-sub006/internal/repository"
)

// PaymentRepo is the idempotency ledger. The primary key on
// provider_session_id is what deduplicates concurrent settlements.
type PaymentRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *PaymentRepo) With(db DB) *PaymentRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *PaymentRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Claim records sessionID as processed.
//
// A concurrent transaction inserting the same key blocks on the primary key
// until the first one finishes; under SERIALIZABLE it then fails with a
// serialization error and is replayed by the unit of work, at which point
// the committed row is visible and the claim is refused.
//
// Returns:
//   - bool: true if this call created the claim, false if it already existed.
func (r *PaymentRepo) Claim(ctx context.Context, sessionID string, attendeeID int64) (bool, error) {
	const op = "postgresrepo.PaymentRepo.Claim"

	tag, err := r.handle().Exec(ctx,
		`INSERT INTO processed_payments(provider_session_id, attendee_id, processed_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (provider_session_id) DO NOTHING`,
		sessionID, attendeeID, formatTime(time.Now()),
	)
	if err != nil {
		return false, wrapDBErr(op, err)
	}

	return tag.RowsAffected() == 1, nil
}

// Lookup returns the attendee a session settled into.
//
// Returns:
//   - int64: the attendee ID, zero when the settlement recorded an anomaly.
//   - error: repository.ErrNotFound if the session was never claimed.
func (r *PaymentRepo) Lookup(ctx context.Context, sessionID string) (int64, error) {
	const op = "postgresrepo.PaymentRepo.Lookup"

	var id int64
	if err := r.handle().QueryRow(ctx,
		`SELECT attendee_id FROM processed_payments WHERE provider_session_id = $1`,
		sessionID,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *PaymentRepo) Link(ctx context.Context, sessionID string, attendeeID int64) error {
	const op = "postgresrepo.PaymentRepo.Link"

	tag, err := r.handle().Exec(ctx,
		`UPDATE processed_payments SET attendee_id = $2 WHERE provider_session_id = $1`,
		sessionID, attendeeID,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}
