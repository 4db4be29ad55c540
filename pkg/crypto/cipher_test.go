package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestCipher_RoundTrip(t *testing.T) {
	c, err := NewCipherFromHex(testKey)
	require.NoError(t, err)

	sealed, err := c.Seal("ghp_secret", "repo-1")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "ghp_secret")

	opened, err := c.Open(sealed, "repo-1")
	require.NoError(t, err)
	assert.Equal(t, "ghp_secret", opened)

	again, err := c.Seal("ghp_secret", "repo-1")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ")
}

func TestCipher_ContextMismatch(t *testing.T) {
	c, err := NewCipherFromHex(testKey)
	require.NoError(t, err)

	sealed, err := c.Seal("ghp_secret", "repo-1")
	require.NoError(t, err)

	_, err = c.Open(sealed, "repo-2")
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestCipher_BadInput(t *testing.T) {
	_, err := NewCipherFromHex("abcd")
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = NewCipherFromHex(strings.Repeat("zz", 32))
	assert.ErrorIs(t, err, ErrInvalidKey)

	c, err := NewCipherFromHex(testKey)
	require.NoError(t, err)

	_, err = c.Open("!!!", "x")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = c.Open("AAAA", "x")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestNoOpEncryptor(t *testing.T) {
	var e Encryptor = NoOpEncryptor{}
	s, err := e.Seal("plain", "ctx")
	require.NoError(t, err)
	o, err := e.Open(s, "other")
	require.NoError(t, err)
	assert.Equal(t, "plain", o)
}
