package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// Users is the PostgreSQL account store.
type Users struct {
	db *sql.DB
}

// NewUsers creates an account store backed by the given database handle.
func NewUsers(db *sql.DB) *Users {
	return &Users{db: db}
}

// Create inserts a new account with RoleUser. A duplicate email maps to
// ErrEmailTaken via the unique-violation code.
func (u *Users) Create(ctx context.Context, email, passwordHash string) (User, error) {
	var user User
	err := u.db.QueryRowContext(ctx, `
		INSERT INTO users (email, password_hash, role)
		VALUES ($1, $2, $3)
		RETURNING id, email, password_hash, role, created_at`,
		email, passwordHash, RoleUser,
	).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return User{}, ErrEmailTaken
		}
		return User{}, fmt.Errorf("auth: create user: %w", err)
	}
	return user, nil
}

// GetByEmail fetches an account for login. A missing account maps to
// ErrInvalidCredentials so the caller cannot distinguish it from a bad
// password.
func (u *Users) GetByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := u.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, role, created_at
		FROM users WHERE email = $1`,
		email,
	).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, fmt.Errorf("auth: get user by email: %w", err)
	}
	return user, nil
}

// GetByID fetches an account by id.
func (u *Users) GetByID(ctx context.Context, id string) (User, error) {
	var user User
	err := u.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, role, created_at
		FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, fmt.Errorf("auth: get user by id: %w", err)
	}
	return user, nil
}
