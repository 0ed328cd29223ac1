package serverdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotAnonymous reports an operation that requires an anonymous user
// but was given the id of a registered one.
var ErrNotAnonymous = errors.New("user id belongs to a registered user")

// ErrUserNotFound reports an operation against a user id that has no row.
var ErrUserNotFound = errors.New("user not found")

// User represents a user row. Anonymous users have no email.
type User struct {
	ID          string
	Email       string
	IsAnonymous bool
	CreatedAt   time.Time
}

// CreateUser inserts a new registered user with the given email
// (lowercased). Fails when the email is already taken.
func (db *ServerDB) CreateUser(ctx context.Context, email string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}

	id := NewUserID()
	now := time.Now().UTC()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, email, is_anonymous, created_at) VALUES (?, ?, 0, ?)`,
		id, email, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return &User{ID: id, Email: email, CreatedAt: now}, nil
}

// EnsureAnonymousUser creates an anonymous user row if it is absent.
// Offline-first clients mint their own UUID before first contact, so a
// requested id is honored; re-provisioning an existing anonymous id is
// idempotent. Ids owned by registered users are refused.
func (db *ServerDB) EnsureAnonymousUser(ctx context.Context, userID string) (*User, error) {
	if userID == "" {
		userID = NewUserID()
	}
	now := time.Now().UTC()
	if _, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (id, email, is_anonymous, created_at) VALUES (?, NULL, 1, ?)`,
		userID, now,
	); err != nil {
		return nil, fmt.Errorf("insert anonymous user: %w", err)
	}

	u, err := db.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("anonymous user %s missing after insert", userID)
	}
	if !u.IsAnonymous {
		return nil, fmt.Errorf("%w: %s", ErrNotAnonymous, userID)
	}
	return u, nil
}

// GetUserByID returns the user with the given ID, or nil if not found.
func (db *ServerDB) GetUserByID(ctx context.Context, id string) (*User, error) {
	u := &User{}
	var email sql.NullString
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, email, is_anonymous, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &email, &u.IsAnonymous, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	u.Email = email.String
	return u, nil
}

// GetUserByEmail returns the user with the given email
// (case-insensitive), or nil if not found.
func (db *ServerDB) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u := &User{}
	var got sql.NullString
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, email, is_anonymous, created_at FROM users WHERE LOWER(email) = ?`, email,
	).Scan(&u.ID, &got, &u.IsAnonymous, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	u.Email = got.String
	return u, nil
}
