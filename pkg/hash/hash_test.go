package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	t.Parallel()

	h, err := HashPassword("Passw0rd")
	require.NoError(t, err)
	assert.NotEqual(t, "Passw0rd", h)
	assert.True(t, IsHash(h))
	assert.True(t, CheckPassword(h, "Passw0rd"))
	assert.False(t, CheckPassword(h, "passw0rd"))
}

func TestHashPassword_Salted(t *testing.T) {
	t.Parallel()

	a, err := HashPassword("Passw0rd")
	require.NoError(t, err)
	b, err := HashPassword("Passw0rd")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestIsHash_Plaintext(t *testing.T) {
	t.Parallel()

	assert.False(t, IsHash("Passw0rd"))
	assert.False(t, IsHash(""))
}
