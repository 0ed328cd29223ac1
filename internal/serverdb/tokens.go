package serverdb

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"time"
)

const (
	tokenPrefix = "rl_"
	tokenLength = 32
)

var base62Chars = []byte("0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz")

// Token represents a stored bearer token (without the plaintext secret).
type Token struct {
	ID          string
	UserID      string
	TokenPrefix string
	Name        string
	LastUsedAt  *time.Time
	CreatedAt   time.Time
}

// IssueToken mints a bearer token for the given user. Returns the
// plaintext (shown exactly once) and the stored Token record; only the
// SHA-256 hash is persisted.
func (db *ServerDB) IssueToken(ctx context.Context, userID, name string) (string, *Token, error) {
	var exists int
	if err := db.conn.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, userID).Scan(&exists); err != nil {
		if err == sql.ErrNoRows {
			return "", nil, fmt.Errorf("%s: %w", userID, ErrUserNotFound)
		}
		return "", nil, fmt.Errorf("check user: %w", err)
	}

	id, err := generateID("tk_")
	if err != nil {
		return "", nil, fmt.Errorf("generate token id: %w", err)
	}

	secret := make([]byte, tokenLength)
	for i := range secret {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(base62Chars))))
		if err != nil {
			return "", nil, fmt.Errorf("generate random token: %w", err)
		}
		secret[i] = base62Chars[n.Int64()]
	}

	plaintext := tokenPrefix + string(secret)
	prefix := string(secret[:8])

	hash := sha256.Sum256([]byte(plaintext))
	tokenHash := hex.EncodeToString(hash[:])

	now := time.Now().UTC()
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO tokens (id, user_id, token_hash, token_prefix, name, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, userID, tokenHash, prefix, name, now,
	)
	if err != nil {
		return "", nil, fmt.Errorf("insert token: %w", err)
	}

	tk := &Token{
		ID:          id,
		UserID:      userID,
		TokenPrefix: prefix,
		Name:        name,
		CreatedAt:   now,
	}
	return plaintext, tk, nil
}

// VerifyToken checks a plaintext token against stored hashes.
// Returns the matching Token and its User, or nils when nothing matches.
func (db *ServerDB) VerifyToken(ctx context.Context, plaintext string) (*Token, *User, error) {
	hash := sha256.Sum256([]byte(plaintext))
	tokenHash := hex.EncodeToString(hash[:])

	tk := &Token{}
	u := &User{}
	var email sql.NullString
	err := db.conn.QueryRowContext(ctx, `
		SELECT t.id, t.user_id, t.token_prefix, t.name, t.last_used_at, t.created_at,
		       u.id, u.email, u.is_anonymous, u.created_at
		FROM tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.token_hash = ?
	`, tokenHash).Scan(
		&tk.ID, &tk.UserID, &tk.TokenPrefix, &tk.Name, &tk.LastUsedAt, &tk.CreatedAt,
		&u.ID, &email, &u.IsAnonymous, &u.CreatedAt,
	)
	if err == sql.ErrNoRows {
		slog.Debug("token not found", "hash_prefix", tokenHash[:8])
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("verify token: %w", err)
	}
	u.Email = email.String

	now := time.Now().UTC()
	if _, err := db.conn.ExecContext(ctx, `UPDATE tokens SET last_used_at = ? WHERE id = ?`, now, tk.ID); err != nil {
		slog.Warn("update last_used_at", "token_id", tk.ID, "err", err)
	}
	tk.LastUsedAt = &now

	return tk, u, nil
}
