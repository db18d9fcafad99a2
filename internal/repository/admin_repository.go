package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"portfolio/api/internal/models"
)

var ErrAdminNotFound = errors.New("admin not found")

// Querier is the subset of pgxpool.Pool the repository needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type AdminRepository struct {
	db Querier
}

func NewAdminRepository(db Querier) *AdminRepository {
	return &AdminRepository{db: db}
}

const adminColumns = `id::text, email, password, first_name, last_name, created_at, updated_at`

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *AdminRepository) FindByEmail(ctx context.Context, email string) (models.Admin, error) {
	const query = `SELECT ` + adminColumns + ` FROM admin WHERE email = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, NormalizeEmail(email)))
}

func (r *AdminRepository) GetByID(ctx context.Context, id string) (models.Admin, error) {
	const query = `SELECT ` + adminColumns + ` FROM admin WHERE id::text = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

// MatchesIdentity reports whether a principal with both id and email still exists.
func (r *AdminRepository) MatchesIdentity(ctx context.Context, id, email string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM admin WHERE id::text = $1 AND email = $2)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, id, NormalizeEmail(email)).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *AdminRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	const query = `UPDATE admin SET password = $2, updated_at = NOW() WHERE id::text = $1`

	cmd, err := r.db.Exec(ctx, query, id, passwordHash)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAdminNotFound
	}
	return nil
}

type ProfileUpdate struct {
	FirstName string
	LastName  string
	Email     string
}

func (r *AdminRepository) UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (models.Admin, error) {
	const query = `
		UPDATE admin
		SET first_name = $2, last_name = $3, email = $4, updated_at = NOW()
		WHERE id::text = $1
		RETURNING ` + adminColumns

	return r.scanOne(r.db.QueryRow(ctx, query,
		id,
		strings.TrimSpace(update.FirstName),
		strings.TrimSpace(update.LastName),
		NormalizeEmail(update.Email),
	))
}

func (r *AdminRepository) Create(ctx context.Context, admin models.Admin) (models.Admin, error) {
	const query = `
		INSERT INTO admin (email, password, first_name, last_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING ` + adminColumns

	return r.scanOne(r.db.QueryRow(ctx, query,
		NormalizeEmail(admin.Email),
		admin.PasswordHash,
		strings.TrimSpace(admin.FirstName),
		strings.TrimSpace(admin.LastName),
	))
}

func (r *AdminRepository) scanOne(row pgx.Row) (models.Admin, error) {
	var admin models.Admin
	if err := row.Scan(
		&admin.ID,
		&admin.Email,
		&admin.PasswordHash,
		&admin.FirstName,
		&admin.LastName,
		&admin.CreatedAt,
		&admin.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Admin{}, ErrAdminNotFound
		}
		return models.Admin{}, err
	}
	return admin, nil
}
