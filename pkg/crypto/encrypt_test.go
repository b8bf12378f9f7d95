package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestFieldCipher_RoundTrip(t *testing.T) {
	c, err := NewFieldCipher(testKey)
	require.NoError(t, err)

	sealed, err := c.Seal("payouts@example.com")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, "v1:"))
	assert.NotContains(t, sealed, "payouts@example.com")

	again, err := c.Seal("payouts@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ between seals")

	plain, err := c.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "payouts@example.com", plain)
}

func TestFieldCipher_Empty(t *testing.T) {
	c, err := NewFieldCipher(testKey)
	require.NoError(t, err)

	sealed, err := c.Seal("")
	require.NoError(t, err)
	assert.Empty(t, sealed)

	plain, err := c.Open("")
	require.NoError(t, err)
	assert.Empty(t, plain)
}

func TestFieldCipher_Errors(t *testing.T) {
	_, err := NewFieldCipher("short")
	assert.Error(t, err)

	c, err := NewFieldCipher(testKey)
	require.NoError(t, err)

	_, err = c.Open("plain@example.com")
	assert.ErrorIs(t, err, ErrNotSealed)

	other, err := NewFieldCipher("fedcba9876543210fedcba9876543210")
	require.NoError(t, err)
	sealed, err := other.Seal("x@y.io")
	require.NoError(t, err)
	_, err = c.Open(sealed)
	assert.Error(t, err)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "an***@example.com", Mask("ana@example.com"))
	assert.Equal(t, "a***@example.com", Mask("a@example.com"))
	assert.Equal(t, "***", Mask("not-an-email"))
}
