package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasherCost(t *testing.T) {
	assert.Equal(t, MinPasswordCost, NewPasswordHasher(4).cost)
	assert.Equal(t, 12, NewPasswordHasher(12).cost)
	assert.Equal(t, bcrypt.MaxCost, NewPasswordHasher(99).cost)
}

func TestPasswordHasherHashAndCompare(t *testing.T) {
	h := NewPasswordHasher(MinPasswordCost)

	hash, err := h.Hash("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, cost, MinPasswordCost)

	again, err := h.Hash("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, hash, again, "salt must differ per hash")

	assert.True(t, h.Compare(hash, "correct horse"))
	assert.False(t, h.Compare(hash, "Correct horse"))
	assert.False(t, h.Compare("", "correct horse"))

	_, err = h.Hash("")
	assert.Error(t, err)
}

func TestPasswordHasherCompareUnknown(t *testing.T) {
	h := NewPasswordHasher(MinPasswordCost)
	assert.False(t, h.CompareUnknown("unknown-account"))

	cost, err := bcrypt.Cost(h.dummy)
	require.NoError(t, err)
	assert.Equal(t, MinPasswordCost, cost)
}
