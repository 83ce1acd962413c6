package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptPasswords(t *testing.T) {
	p := NewBcryptPasswords(bcrypt.MinCost)
	hash, err := p.Hash("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)

	assert.True(t, p.Verify("correct horse", hash))
	assert.False(t, p.Verify("battery staple", hash))
	assert.False(t, p.Verify("", hash))
	assert.False(t, p.Verify("correct horse", ""))
}

func TestBcryptCostOutOfRange(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptPasswords(0).cost)
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptPasswords(bcrypt.MaxCost+1).cost)
}
