package postgresrepo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/chobbledotcom/tickets-sub006/internal/domain"
)

type EventRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *EventRepo) With(db DB) *EventRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *EventRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const eventColumns = `id, name, slug, kind, max_attendees, max_quantity, unit_price, event_date,
	min_days_notice, max_days_ahead, bookable_days, webhook_url, active, created`

// Get retrieves an event by its ID.
//
// Returns:
//   - *domain.Event: the event when found.
//   - error: repository.ErrNotFound if the event is not found.
func (r *EventRepo) Get(ctx context.Context, id int64) (*domain.Event, error) {
	const op = "postgresrepo.EventRepo.Get"

	ev, err := scanEvent(r.handle().QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return ev, nil
}

// GetForUpdate retrieves an event and takes a row lock on it. It must be
// called on a repo bound to a transaction.
//
// Returns:
//   - *domain.Event: the locked event.
//   - error: repository.ErrNotFound if the event is not found.
func (r *EventRepo) GetForUpdate(ctx context.Context, id int64) (*domain.Event, error) {
	const op = "postgresrepo.EventRepo.GetForUpdate"

	ev, err := scanEvent(r.handle().QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`,
		id,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return ev, nil
}

// Create inserts an event and returns its ID.
//
// Returns:
//   - int64: the created event ID.
//   - error: repository.ErrConflict if the slug is taken.
func (r *EventRepo) Create(ctx context.Context, ev *domain.Event) (int64, error) {
	const op = "postgresrepo.EventRepo.Create"

	price := decimal.NullDecimal{}
	if ev.UnitPrice != nil {
		price = decimal.NewNullDecimal(*ev.UnitPrice)
	}

	created := ev.Created
	if created.IsZero() {
		created = time.Now()
	}

	var id int64
	if err := r.handle().QueryRow(ctx,
		`INSERT INTO events(name, slug, kind, max_attendees, max_quantity, unit_price, event_date,
		                    min_days_notice, max_days_ahead, bookable_days, webhook_url, active, created)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING id`,
		ev.Name, ev.Slug, string(ev.Kind), ev.MaxAttendees, ev.MaxQuantity, price, nullableDate(ev.EventDate),
		ev.MinDaysNotice, ev.MaxDaysAhead, domain.FormatWeekdays(ev.BookableDays), ev.WebhookURL,
		ev.Active, formatTime(created),
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*domain.Event, error) {
	var (
		ev       domain.Event
		kind     string
		price    decimal.NullDecimal
		eventDay *string
		days     string
		created  string
	)

	if err := row.Scan(
		&ev.ID,
		&ev.Name,
		&ev.Slug,
		&kind,
		&ev.MaxAttendees,
		&ev.MaxQuantity,
		&price,
		&eventDay,
		&ev.MinDaysNotice,
		&ev.MaxDaysAhead,
		&days,
		&ev.WebhookURL,
		&ev.Active,
		&created,
	); err != nil {
		return nil, err
	}

	ev.Kind = domain.EventKind(kind)
	if price.Valid {
		p := price.Decimal
		ev.UnitPrice = &p
	}
	if eventDay != nil {
		ev.EventDate = *eventDay
	}
	// Stored values were written by FormatWeekdays.
	ev.BookableDays, _ = domain.ParseWeekdays(days)
	ev.Created = parseTime(created)

	return &ev, nil
}
