package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/session-auth-api/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5433, User: "auth", Password: "pw", Name: "session_auth", SSLMode: "disable"})
	assert.Equal(t, "host=db port=5433 user=auth password=pw dbname=session_auth sslmode=disable", dsn)
}
