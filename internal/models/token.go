package models

import "time"

// RefreshToken represents a persisted opaque refresh token.
type RefreshToken struct {
	ID         string    `db:"id" json:"id"`
	Token      string    `db:"token" json:"token"`
	UserID     string    `db:"user_id" json:"userId"`
	ExpiryDate time.Time `db:"expiry_date" json:"expiryDate"`
	Revoked    bool      `db:"revoked" json:"revoked"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// ExpiredAt reports whether the token is past its expiry at the given instant.
func (t *RefreshToken) ExpiredAt(now time.Time) bool {
	return t.ExpiryDate.Before(now)
}
