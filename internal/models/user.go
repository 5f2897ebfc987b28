package models

import (
	"time"

	"github.com/lib/pq"
)

// RoleUser is the role every registered account starts with.
const RoleUser = "USER"

// User represents an application user stored in the users table.
type User struct {
	ID           string         `db:"id" json:"id"`
	Username     string         `db:"username" json:"username"`
	Email        string         `db:"email" json:"email"`
	PasswordHash string         `db:"password_hash" json:"-"`
	Roles        pq.StringArray `db:"roles" json:"roles"`
	LoginCount   int64          `db:"login_count" json:"loginCount"`
	LastLogin    *time.Time     `db:"last_login" json:"lastLogin"`
	CreatedAt    time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updatedAt"`
}
