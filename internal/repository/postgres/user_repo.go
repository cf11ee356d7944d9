// internal/repository/postgres/user_repo.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ses-portal/internal/domain/auth"
	xerrors "ses-portal/internal/pkg/errors"
)

// UserRepository reads identity records. The only write is the last-access stamp.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, tax_id, name, email, password_hash, active, last_access_at`

// FindUser retrieves a user by ID
func (r *UserRepository) FindUser(ctx context.Context, id int64) (*auth.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// FindByTaxID retrieves a user by normalized tax id
func (r *UserRepository) FindByTaxID(ctx context.Context, taxID string) (*auth.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE tax_id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, taxID))
}

// TouchLastAccess records a successful login
func (r *UserRepository) TouchLastAccess(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE users SET last_access_at = $1 WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, at, id); err != nil {
		return fmt.Errorf("failed to update last access: %w", err)
	}
	return nil
}

func (r *UserRepository) scanOne(row *sql.Row) (*auth.User, error) {
	var (
		u          auth.User
		lastAccess sql.NullTime
	)
	err := row.Scan(&u.ID, &u.TaxID, &u.Name, &u.Email, &u.PasswordHash, &u.Active, &lastAccess)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if lastAccess.Valid {
		u.LastAccessAt = &lastAccess.Time
	}
	return &u, nil
}
