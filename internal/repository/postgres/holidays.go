package postgresrepo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chobbledotcom/tickets-sub006/internal/domain"
)

type HolidayRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *HolidayRepo) With(db DB) *HolidayRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *HolidayRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *HolidayRepo) List(ctx context.Context) ([]domain.Holiday, error) {
	const op = "postgresrepo.HolidayRepo.List"

	rows, err := r.handle().Query(ctx,
		`SELECT id, name, start_date, end_date
		 FROM holidays
		 ORDER BY start_date`,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.Holiday
	for rows.Next() {
		var h domain.Holiday
		if err := rows.Scan(&h.ID, &h.Name, &h.StartDate, &h.EndDate); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *HolidayRepo) Create(ctx context.Context, h *domain.Holiday) (int64, error) {
	const op = "postgresrepo.HolidayRepo.Create"

	var id int64
	if err := r.handle().QueryRow(ctx,
		`INSERT INTO holidays(name, start_date, end_date)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		h.Name, h.StartDate, h.EndDate,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}
