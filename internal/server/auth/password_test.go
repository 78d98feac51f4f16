package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasher(t *testing.T) {
	t.Parallel()

	h := NewPasswordHasher(bcrypt.MinCost)

	for _, pw := range []string{"pw12345678", "pässwörd-long-enough", " spaced out "} {
		hash, err := h.Hash(pw)
		require.NoError(t, err)
		assert.NotEqual(t, pw, hash)
		assert.True(t, h.Verify(pw, hash), pw)
		assert.False(t, h.Verify(pw+"x", hash), pw)
	}
}

func TestPasswordHasher_LongMultibyte(t *testing.T) {
	t.Parallel()

	h := NewPasswordHasher(bcrypt.MinCost)
	cjk := strings.Repeat("密", 30)  // 90 bytes
	emoji := strings.Repeat("🔑", 40) // 160 bytes

	for _, pw := range []string{cjk, emoji} {
		hash, err := h.Hash(pw)
		require.NoError(t, err)
		assert.True(t, h.Verify(pw, hash))
		// differs only past byte 72
		assert.False(t, h.Verify(pw+"x", hash))
	}

	exact := strings.Repeat("a", 72)
	hash, err := h.Hash(exact)
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte(exact)))
}

func TestPasswordHasher_Salted(t *testing.T) {
	t.Parallel()

	h := NewPasswordHasher(bcrypt.MinCost)
	a, err := h.Hash("same-password")
	require.NoError(t, err)
	b, err := h.Hash("same-password")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestPasswordHasher_MalformedHash(t *testing.T) {
	t.Parallel()

	h := NewPasswordHasher(bcrypt.MinCost)
	assert.False(t, h.Verify("pw", ""))
	assert.False(t, h.Verify("pw", "not-a-bcrypt-hash"))
}

func TestNewPasswordHasher_CostBounds(t *testing.T) {
	t.Parallel()

	assert.Equal(t, bcrypt.DefaultCost, NewPasswordHasher(0).cost)
	assert.Equal(t, bcrypt.DefaultCost, NewPasswordHasher(bcrypt.MaxCost+1).cost)
	assert.Equal(t, 12, NewPasswordHasher(12).cost)

	hash, err := NewPasswordHasher(5).Hash("pw12345678")
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, 5, cost)
}
