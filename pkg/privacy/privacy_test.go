package privacy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasher_HashAndVerify(t *testing.T) {
	h := NewHasher("pepper", DefaultParams())

	token, err := h.Hash("S1")
	require.NoError(t, err)

	parts := strings.Split(token, ":")
	require.Len(t, parts, 2)
	assert.Len(t, parts[0], 64)
	assert.Len(t, parts[1], 32)

	ok, err := h.Verify("S1", token)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("S2", token)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasher_SaltsDiffer(t *testing.T) {
	h := NewHasher("", DefaultParams())
	a, err := h.Hash("S1")
	require.NoError(t, err)
	b, err := h.Hash("S1")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestHasher_PepperMatters(t *testing.T) {
	token, err := NewHasher("one", DefaultParams()).Hash("S1")
	require.NoError(t, err)

	ok, err := NewHasher("two", DefaultParams()).Verify("S1", token)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasher_Errors(t *testing.T) {
	h := NewHasher("", DefaultParams())

	_, err := h.Hash(" ")
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = h.Verify("S1", "nosalt")
	assert.ErrorIs(t, err, ErrMalformedHash)

	_, err = h.Verify("S1", "zz:zz")
	assert.ErrorIs(t, err, ErrMalformedHash)
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)

	assert.True(t, CheckPassword(hash, "s3cret"))
	assert.False(t, CheckPassword(hash, "wrong"))

	_, err = HashPassword("")
	assert.ErrorIs(t, err, ErrEmptyInput)
}
