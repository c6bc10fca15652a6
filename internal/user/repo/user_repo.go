package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-app-core/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-app-core/pkg/utilities"
)

const userColumns = `id, auth_id, email, name, last_name, birth_date, onboarding_completed,
	expo_push_token, notifications_enabled, created_at, updated_at`

// UserRepo provides data access for the users table using sqlx.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// EnsureTable creates the users table if not exists (idempotent).
// This is a convenience for local development; the hosted project owns migrations.
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  auth_id TEXT NOT NULL UNIQUE,
  email TEXT NOT NULL,
  name TEXT,
  last_name TEXT,
  birth_date TEXT,
  onboarding_completed BOOLEAN NOT NULL DEFAULT false,
  expo_push_token TEXT,
  notifications_enabled BOOLEAN NOT NULL DEFAULT false,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Create inserts a new profile row. ID is assigned here when empty and the
// stored row (with defaults and timestamps) is scanned back into u.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) error {
	if u.ID == "" {
		u.ID = utilities.NewUUID()
	}
	q := `INSERT INTO users (id, auth_id, email, name, last_name, onboarding_completed, notifications_enabled)
		VALUES (:id, :auth_id, :email, :name, :last_name, :onboarding_completed, :notifications_enabled)
		RETURNING ` + userColumns
	rows, err := r.db.NamedQueryContext(ctx, q, u)
	if err != nil {
		return err
	}
	defer rows.Close()
	if rows.Next() {
		return rows.StructScan(u)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return errors.New("no row returned")
}

// GetByAuthID returns the profile linked to an auth identity or entity.ErrNotFound.
func (r *UserRepo) GetByAuthID(ctx context.Context, authID string) (*entity.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE auth_id=$1`, authID)
}

// GetByID fetches a full profile row.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
}

func (r *UserRepo) getOne(ctx context.Context, q string, args ...any) (*entity.User, error) {
	var u entity.User
	if err := r.db.GetContext(ctx, &u, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entity.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Update applies a partial update and returns the updated row.
// onboarding_completed is OR-ed so it can never go back to false.
func (r *UserRepo) Update(ctx context.Context, id string, p entity.Patch) (*entity.User, error) {
	q, args := buildUpdate(id, p)
	if q == "" {
		return nil, errors.New("empty patch")
	}
	return r.getOne(ctx, q, args...)
}

// Delete removes a profile row by id.
func (r *UserRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return entity.ErrNotFound
	}
	return nil
}

// buildUpdate renders the UPDATE statement for a patch; columns are sorted so
// the statement text is stable.
func buildUpdate(id string, p entity.Patch) (string, []any) {
	fields := p.Fields()
	if len(fields) == 0 {
		return "", nil
	}
	cols := make([]string, 0, len(fields))
	for c := range fields {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	sets := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		ph := fmt.Sprintf("$%d", i+1)
		if c == "onboarding_completed" {
			sets = append(sets, c+" = onboarding_completed OR "+ph)
		} else {
			sets = append(sets, c+" = "+ph)
		}
		args = append(args, fields[c])
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)
	q := fmt.Sprintf(`UPDATE users SET %s WHERE id=$%d RETURNING %s`, strings.Join(sets, ", "), len(args), userColumns)
	return q, args
}
