package postgresrepo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chobbledotcom/tickets-sub006/internal/domain"
	"github.com/chobbledotcom/tickets-sub006/internal/repository"
)

type AnomalyRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *AnomalyRepo) With(db DB) *AnomalyRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *AnomalyRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *AnomalyRepo) Record(ctx context.Context, a *domain.PaymentAnomaly) error {
	const op = "postgresrepo.AnomalyRepo.Record"

	ids, err := json.Marshal(a.EventIDs)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if _, err := r.handle().Exec(ctx,
		`INSERT INTO payment_anomalies(provider_session_id, payment_reference, provider, event_ids,
		                               quantity, reason, detected_at, resolved)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 'false')`,
		a.SessionID, a.PaymentReference, a.Provider, string(ids), a.Quantity, a.Reason,
		formatTime(a.DetectedAt),
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *AnomalyRepo) Get(ctx context.Context, sessionID string) (*domain.PaymentAnomaly, error) {
	const op = "postgresrepo.AnomalyRepo.Get"

	a, err := scanAnomaly(r.handle().QueryRow(ctx,
		`SELECT provider_session_id, payment_reference, provider, event_ids, quantity, reason, detected_at, resolved
		 FROM payment_anomalies
		 WHERE provider_session_id = $1`,
		sessionID,
	))
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return a, nil
}

func (r *AnomalyRepo) List(ctx context.Context, includeResolved bool) ([]domain.PaymentAnomaly, error) {
	const op = "postgresrepo.AnomalyRepo.List"

	rows, err := r.handle().Query(ctx,
		`SELECT provider_session_id, payment_reference, provider, event_ids, quantity, reason, detected_at, resolved
		 FROM payment_anomalies
		 WHERE $1 OR resolved = 'false'
		 ORDER BY detected_at`,
		includeResolved,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.PaymentAnomaly
	for rows.Next() {
		a, err := scanAnomaly(rows)
		if err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *AnomalyRepo) Resolve(ctx context.Context, sessionID string) error {
	const op = "postgresrepo.AnomalyRepo.Resolve"

	tag, err := r.handle().Exec(ctx,
		`UPDATE payment_anomalies SET resolved = 'true' WHERE provider_session_id = $1`,
		sessionID,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

func scanAnomaly(row rowScanner) (*domain.PaymentAnomaly, error) {
	var (
		a        domain.PaymentAnomaly
		ids      string
		detected string
		resolved string
	)

	if err := row.Scan(
		&a.SessionID,
		&a.PaymentReference,
		&a.Provider,
		&ids,
		&a.Quantity,
		&a.Reason,
		&detected,
		&resolved,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(ids), &a.EventIDs); err != nil {
		return nil, err
	}
	a.DetectedAt = parseTime(detected)
	a.Resolved = resolved == "true"

	return &a, nil
}
