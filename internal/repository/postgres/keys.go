package postgresrepo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chobbledotcom/tickets-sub006/internal/domain"
)

// KeyRepo stores the PII key set and the per-admin wrapped data keys.
type KeyRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *KeyRepo) With(db DB) *KeyRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *KeyRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *KeyRepo) GetKeySet(ctx context.Context) (*domain.KeySet, error) {
	const op = "postgresrepo.KeyRepo.GetKeySet"

	var (
		ks      domain.KeySet
		created string
	)
	if err := r.handle().QueryRow(ctx,
		`SELECT public_key, sealed_private_key, created FROM encryption_keys WHERE id = 1`,
	).Scan(&ks.PublicKey, &ks.SealedPrivateKey, &created); err != nil {
		return nil, wrapDBErr(op, err)
	}
	ks.Created = parseTime(created)

	return &ks, nil
}

// SaveKeySet stores the key set once. A second call fails with
// repository.ErrConflict.
func (r *KeyRepo) SaveKeySet(ctx context.Context, ks *domain.KeySet) error {
	const op = "postgresrepo.KeyRepo.SaveKeySet"

	created := ks.Created
	if created.IsZero() {
		created = time.Now()
	}

	if _, err := r.handle().Exec(ctx,
		`INSERT INTO encryption_keys(id, public_key, sealed_private_key, created)
		 VALUES (1, $1, $2, $3)`,
		ks.PublicKey, ks.SealedPrivateKey, formatTime(created),
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *KeyRepo) CountAdmins(ctx context.Context) (int, error) {
	const op = "postgresrepo.KeyRepo.CountAdmins"

	var n int
	if err := r.handle().QueryRow(ctx, `SELECT COUNT(*) FROM admins`).Scan(&n); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return n, nil
}

func (r *KeyRepo) CreateAdmin(ctx context.Context, a *domain.Admin) (int64, error) {
	const op = "postgresrepo.KeyRepo.CreateAdmin"

	created := a.Created
	if created.IsZero() {
		created = time.Now()
	}

	var id int64
	if err := r.handle().QueryRow(ctx,
		`INSERT INTO admins(username, password_hash, kek_salt, wrapped_data_key, created)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		a.Username, a.PasswordHash, a.KEKSalt, a.WrappedDataKey, formatTime(created),
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *KeyRepo) GetAdminByUsername(ctx context.Context, username string) (*domain.Admin, error) {
	const op = "postgresrepo.KeyRepo.GetAdminByUsername"

	var (
		a       domain.Admin
		created string
	)
	if err := r.handle().QueryRow(ctx,
		`SELECT id, username, password_hash, kek_salt, wrapped_data_key, created
		 FROM admins WHERE username = $1`,
		username,
	).Scan(&a.ID, &a.Username, &a.PasswordHash, &a.KEKSalt, &a.WrappedDataKey, &created); err != nil {
		return nil, wrapDBErr(op, err)
	}
	a.Created = parseTime(created)

	return &a, nil
}
