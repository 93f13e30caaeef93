package uow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/chobbledotcom/tickets-sub006/internal/repository"
	postgresrepo "github.com/chobbledotcom/tickets-sub006/internal/repository/postgres"
)

// AfterCommit is a function that runs after a successful transaction commit.
type AfterCommit func(ctx context.Context)

// Tx exposes the repositories bound to one transaction.
type Tx interface {
	Events() repository.EventRepository
	Holidays() repository.HolidayRepository
	Attendees() repository.AttendeeRepository
	Payments() repository.PaymentRepository
	Anomalies() repository.AnomalyRepository
	Keys() repository.KeyRepository
}

// Func is the body of a unit of work. It may be invoked more than once when
// the store asks for a retry, so it must not have side effects outside tx;
// those belong in after hooks.
type Func func(ctx context.Context, tx Tx, after func(AfterCommit)) error

// Runner runs units of work.
//
// Do runs fn in a serializable read-write transaction and then executes the
// registered after-commit hooks. Read runs fn against committed state without
// a write transaction. Do must not be nested.
type Runner interface {
	Do(ctx context.Context, fn Func) error
	Read(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

const defaultMaxAttempts = 5

// UoW is the Postgres Runner.
type UoW struct {
	store       *postgresrepo.Store
	maxAttempts int
	log         *slog.Logger
}

type Option func(*UoW)

// WithMaxAttempts bounds how often a transaction is replayed after a
// serialization failure or deadlock.
func WithMaxAttempts(n int) Option {
	return func(u *UoW) {
		if n > 0 {
			u.maxAttempts = n
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(u *UoW) {
		if log != nil {
			u.log = log
		}
	}
}

func NewUoW(store *postgresrepo.Store, opts ...Option) *UoW {
	u := &UoW{
		store:       store,
		maxAttempts: defaultMaxAttempts,
		log:         slog.New(slog.DiscardHandler),
	}

	for _, opt := range opts {
		opt(u)
	}

	return u
}

// Do runs fn inside the transaction. After a successful commit,
// it executes all after-commit hooks.
func (u *UoW) Do(ctx context.Context, fn Func) error {
	return u.DoWithOpts(ctx, nil, fn)
}

// DoWithOpts runs fn inside the transaction with the given options,
// replaying it on serialization failures. After a successful commit,
// it executes all after-commit hooks of the attempt that committed.
func (u *UoW) DoWithOpts(ctx context.Context, opts *pgx.TxOptions, fn Func) error {
	const op = "uow.UoW.DoWithOpts"

	var (
		hooks []AfterCommit
		err   error
	)

	for attempt := 1; attempt <= u.maxAttempts; attempt++ {
		hooks = hooks[:0]

		err = u.store.RunTx(ctx, opts, func(ctx context.Context, db postgresrepo.DB) error {
			return fn(ctx, pgTx{store: u.store, db: db}, func(h AfterCommit) {
				hooks = append(hooks, h)
			})
		})
		if err == nil || !postgresrepo.IsRetryable(err) {
			break
		}

		u.log.Debug("transaction retry", slog.Int("attempt", attempt), slog.String("op", op))

		if err := sleepCtx(ctx, backoff(attempt)); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
	}
	if err != nil {
		return err
	}

	for _, h := range hooks {
		h(ctx)
	}

	return nil
}

// Read runs fn with repositories on the pool. Each statement sees the latest
// committed state.
func (u *UoW) Read(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return fn(ctx, pgTx{store: u.store})
}

type pgTx struct {
	store *postgresrepo.Store
	db    postgresrepo.DB
}

func (t pgTx) Events() repository.EventRepository       { return t.store.Events().With(t.db) }
func (t pgTx) Holidays() repository.HolidayRepository   { return t.store.Holidays().With(t.db) }
func (t pgTx) Attendees() repository.AttendeeRepository { return t.store.Attendees().With(t.db) }
func (t pgTx) Payments() repository.PaymentRepository   { return t.store.Payments().With(t.db) }
func (t pgTx) Anomalies() repository.AnomalyRepository  { return t.store.Anomalies().With(t.db) }
func (t pgTx) Keys() repository.KeyRepository           { return t.store.Keys().With(t.db) }

func backoff(attempt int) time.Duration {
	return time.Duration(attempt*attempt) * 5 * time.Millisecond
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
