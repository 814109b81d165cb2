package users

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Repository persists users in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// uniqueViolation reports whether err is a Postgres unique-constraint error.
func uniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Insert writes a new user and returns it with id and created_at populated.
func (r *Repository) Insert(ctx context.Context, username, email, passwordHash, role string) (*User, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (username, email, password, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, username, email, passwordHash, role)
	u := User{Username: username, Email: email, Role: role}
	if err := row.Scan(&u.ID, &u.CreatedAt); err != nil {
		if uniqueViolation(err) {
			return nil, errDuplicate
		}
		return nil, err
	}
	return &u, nil
}

// ByID returns a user by id, or nil when absent.
func (r *Repository) ByID(ctx context.Context, id int64) (*User, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT id, username, email, role, created_at FROM users WHERE id = $1
	`, id))
}

// ByUsername returns a user plus password hash, or nil when absent.
func (r *Repository) ByUsername(ctx context.Context, username string) (*User, string, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, username, email, role, created_at, password FROM users WHERE username = $1
	`, username)
	var u User
	var hash string
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Role, &u.CreatedAt, &hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", nil
		}
		return nil, "", err
	}
	return &u, hash, nil
}

// ByEmail returns a user by case-insensitive email, or nil when absent.
func (r *Repository) ByEmail(ctx context.Context, email string) (*User, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT id, username, email, role, created_at FROM users WHERE LOWER(email) = LOWER($1)
	`, email))
}

func (r *Repository) scanOne(row *sql.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Role, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}
