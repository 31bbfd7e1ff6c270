package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretCipherSealOpen(t *testing.T) {
	c, err := NewSecretCipher("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	sealed, err := c.Seal("api-key")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, secretPrefix))
	assert.NotContains(t, sealed, "api-key")

	plain, err := c.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "api-key", plain)
}

func TestSecretCipherPlainValuePassesThrough(t *testing.T) {
	c, err := NewSecretCipher("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	plain, err := c.Open("not-sealed")
	require.NoError(t, err)
	assert.Equal(t, "not-sealed", plain)
}

func TestSecretCipherRejectsTamperedValue(t *testing.T) {
	c, err := NewSecretCipher("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	_, err = c.Open(secretPrefix + "AAAA")
	assert.ErrorIs(t, err, errInvalidCiphertext)
}

func TestNewSecretCipherRejectsShortKey(t *testing.T) {
	_, err := NewSecretCipher("short")
	require.Error(t, err)
}
