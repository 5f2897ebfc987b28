package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/session-auth-api/internal/models"
)

const refreshTokenColumns = `id, token, user_id, expiry_date, revoked, created_at`

// RefreshTokenRepository persists refresh tokens in PostgreSQL.
type RefreshTokenRepository struct {
	db *sqlx.DB
}

// NewRefreshTokenRepository creates a new instance of RefreshTokenRepository.
func NewRefreshTokenRepository(db *sqlx.DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// FindActiveByUser returns a non-revoked token owned by the user, expired or not.
func (r *RefreshTokenRepository) FindActiveByUser(ctx context.Context, userID string) (*models.RefreshToken, error) {
	const query = `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE user_id = $1 AND revoked = FALSE ORDER BY created_at DESC LIMIT 1`
	var rt models.RefreshToken
	if err := r.db.GetContext(ctx, &rt, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find refresh token by user: %w", err)
	}
	return &rt, nil
}

// Create persists a refresh token entry.
func (r *RefreshTokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO refresh_tokens (id, token, user_id, expiry_date, revoked, created_at) VALUES (:id, :token, :user_id, :expiry_date, :revoked, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindByValue returns a non-revoked refresh token by its opaque value.
func (r *RefreshTokenRepository) FindByValue(ctx context.Context, value string) (*models.RefreshToken, error) {
	const query = `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE token = $1 AND revoked = FALSE LIMIT 1`
	var rt models.RefreshToken
	if err := r.db.GetContext(ctx, &rt, query, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &rt, nil
}

// Delete removes a refresh token record. Deleting a missing record is not an error.
func (r *RefreshTokenRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM refresh_tokens WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

// Revoke marks the token revoked whatever its current state and returns the updated record.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, value string) (*models.RefreshToken, error) {
	const query = `UPDATE refresh_tokens SET revoked = TRUE WHERE token = $1 RETURNING ` + refreshTokenColumns
	var rt models.RefreshToken
	if err := r.db.GetContext(ctx, &rt, query, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("revoke refresh token: %w", err)
	}
	return &rt, nil
}
