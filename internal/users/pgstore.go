/*
This file defines the Postgres-backed Store, selected when a database DSN
is configured. It shares the file store's semantics: find-or-miss lookups,
idempotent upserts, and bcrypt password verification.
*/
package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

const pgQueryTimeout = 5 * time.Second

// PGStore is the Postgres-backed Store.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wraps an existing connection pool. The pool's lifecycle stays
// with the caller; Close here is a no-op.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Get looks an identity up by UUID.
func (s *PGStore) Get(uuid string) (User, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), pgQueryTimeout)
	defer cancel()

	return s.scanOne(ctx,
		`SELECT uuid, login_key, display_name, password_hash, created_at
		 FROM users WHERE uuid = $1`, uuid)
}

// FindByLoginKey looks an identity up by its credential key.
func (s *PGStore) FindByLoginKey(loginKey string) (User, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), pgQueryTimeout)
	defer cancel()

	return s.scanOne(ctx,
		`SELECT uuid, login_key, display_name, password_hash, created_at
		 FROM users WHERE login_key = $1`, loginKey)
}

func (s *PGStore) scanOne(ctx context.Context, query, arg string) (User, bool, error) {
	var u User
	err := s.pool.QueryRow(ctx, query, arg).
		Scan(&u.UUID, &u.LoginKey, &u.DisplayName, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, fmt.Errorf("failed to query user: %w", err)
	}
	return u, true, nil
}

// Upsert inserts or replaces an identity.
func (s *PGStore) Upsert(user User) error {
	ctx, cancel := context.WithTimeout(context.Background(), pgQueryTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (uuid, login_key, display_name, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (uuid) DO UPDATE SET
		   login_key = EXCLUDED.login_key,
		   display_name = EXCLUDED.display_name,
		   password_hash = EXCLUDED.password_hash`,
		user.UUID, user.LoginKey, user.DisplayName, user.PasswordHash, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// All returns every stored identity.
func (s *PGStore) All() ([]User, error) {
	ctx, cancel := context.WithTimeout(context.Background(), pgQueryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT uuid, login_key, display_name, password_hash, created_at
		 FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.UUID, &u.LoginKey, &u.DisplayName, &u.PasswordHash, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Close is a no-op; the pool belongs to the caller.
func (s *PGStore) Close() error {
	return nil
}

// VerifyPassword implements the authenticator's credential check with the
// same provisioning rule as the file store.
func (s *PGStore) VerifyPassword(username, password string) (bool, error) {
	u, ok, err := s.FindByLoginKey(username)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}

	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil, nil
}
