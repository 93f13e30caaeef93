package postgresrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chobbledotcom/tickets-sub006/internal/domain"
	"github.com/chobbledotcom/tickets-sub006/internal/repository"
)

type AttendeeRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *AttendeeRepo) With(db DB) *AttendeeRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *AttendeeRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const attendeeColumns = `id, event_id, name, email, phone, address, special_instructions,
	quantity, date, ticket_token, payment_id, payment_provider, refunded, checked_in, created`

// InsertWithinCapacity inserts an attendee if the event still has room.
//
// The committed quantity is summed inside the same INSERT .. SELECT that
// writes the row, so no other statement can observe capacity between the
// check and the write. Daily events are scoped by date.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - a: attendee with encrypted PII, quantity, optional date and token.
//   - capacity: the event's max_attendees.
//
// Returns:
//   - int64: the new attendee ID.
//   - error: repository.ErrCapacityExceeded if the attendee does not fit.
//   - error: repository.ErrConflict if the ticket token collides.
func (r *AttendeeRepo) InsertWithinCapacity(
	ctx context.Context,
	a *domain.Attendee,
	capacity int,
) (int64, error) {
	const op = "postgresrepo.AttendeeRepo.InsertWithinCapacity"

	created := a.Created
	if created.IsZero() {
		created = time.Now()
	}

	var id int64
	err := r.handle().QueryRow(ctx,
		`INSERT INTO attendees(event_id, name, email, phone, address, special_instructions,
		                       quantity, date, ticket_token, payment_id, payment_provider,
		                       refunded, checked_in, created)
		 SELECT $1::bigint, $2::text, $3::text, $4::text, $5::text, $6::text,
		        $7::int, $8::text, $9::text, $10::text, $11::text,
		        'false', 'false', $12::text
		 WHERE (
		     SELECT COALESCE(SUM(quantity), 0)
		     FROM attendees
		     WHERE event_id = $1::bigint
		       AND ($8::text IS NULL OR date = $8::text)
		 ) + $7::int <= $13::int
		 RETURNING id`,
		a.EventID, a.Name, a.Email, a.Phone, a.Address, a.SpecialInstructions,
		a.Quantity, nullableDate(a.Date), a.TicketToken, a.PaymentID, a.PaymentProvider,
		formatTime(created), capacity,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%s:%w", op, repository.ErrCapacityExceeded)
		}
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

// CommittedQuantity sums booked quantity for an event, or for one date of a
// daily event when date is not empty.
func (r *AttendeeRepo) CommittedQuantity(ctx context.Context, eventID int64, date string) (int, error) {
	const op = "postgresrepo.AttendeeRepo.CommittedQuantity"

	var n int
	if err := r.handle().QueryRow(ctx,
		`SELECT COALESCE(SUM(quantity), 0)::int
		 FROM attendees
		 WHERE event_id = $1
		   AND ($2::text IS NULL OR date = $2::text)`,
		eventID, nullableDate(date),
	).Scan(&n); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return n, nil
}

func (r *AttendeeRepo) Get(ctx context.Context, id int64) (*domain.Attendee, error) {
	const op = "postgresrepo.AttendeeRepo.Get"

	a, err := scanAttendee(r.handle().QueryRow(ctx,
		`SELECT `+attendeeColumns+` FROM attendees WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return a, nil
}

func (r *AttendeeRepo) GetByToken(ctx context.Context, token string) (*domain.Attendee, error) {
	const op = "postgresrepo.AttendeeRepo.GetByToken"

	a, err := scanAttendee(r.handle().QueryRow(ctx,
		`SELECT `+attendeeColumns+` FROM attendees WHERE ticket_token = $1`,
		token,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return a, nil
}

func (r *AttendeeRepo) ListByEvent(ctx context.Context, eventID int64) ([]domain.Attendee, error) {
	const op = "postgresrepo.AttendeeRepo.ListByEvent"

	out, err := r.list(ctx,
		`SELECT `+attendeeColumns+` FROM attendees WHERE event_id = $1 ORDER BY id`,
		eventID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *AttendeeRepo) ListByPaymentID(ctx context.Context, paymentID string) ([]domain.Attendee, error) {
	const op = "postgresrepo.AttendeeRepo.ListByPaymentID"

	if paymentID == "" {
		return nil, nil
	}

	out, err := r.list(ctx,
		`SELECT `+attendeeColumns+` FROM attendees WHERE payment_id = $1 ORDER BY id`,
		paymentID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// MarkCheckedIn sets checked_in unless the attendee was refunded.
//
// Returns:
//   - error: repository.ErrConflict if the attendee is missing or refunded.
func (r *AttendeeRepo) MarkCheckedIn(ctx context.Context, id int64) error {
	const op = "postgresrepo.AttendeeRepo.MarkCheckedIn"

	tag, err := r.handle().Exec(ctx,
		`UPDATE attendees SET checked_in = 'true'
		 WHERE id = $1 AND refunded = 'false'`,
		id,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	return nil
}

func (r *AttendeeRepo) MarkRefunded(ctx context.Context, id int64) error {
	const op = "postgresrepo.AttendeeRepo.MarkRefunded"

	tag, err := r.handle().Exec(ctx,
		`UPDATE attendees SET refunded = 'true' WHERE id = $1`,
		id,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

func (r *AttendeeRepo) list(ctx context.Context, sql string, args ...any) ([]domain.Attendee, error) {
	rows, err := r.handle().Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var out []domain.Attendee
	for rows.Next() {
		a, err := scanAttendee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}

	return out, rows.Err()
}

func scanAttendee(row rowScanner) (*domain.Attendee, error) {
	var (
		a         domain.Attendee
		date      *string
		refunded  string
		checkedIn string
		created   string
	)

	if err := row.Scan(
		&a.ID,
		&a.EventID,
		&a.Name,
		&a.Email,
		&a.Phone,
		&a.Address,
		&a.SpecialInstructions,
		&a.Quantity,
		&date,
		&a.TicketToken,
		&a.PaymentID,
		&a.PaymentProvider,
		&refunded,
		&checkedIn,
		&created,
	); err != nil {
		return nil, err
	}

	if date != nil {
		a.Date = *date
	}
	a.Refunded = refunded == "true"
	a.CheckedIn = checkedIn == "true"
	a.Created = parseTime(created)

	return &a, nil
}
