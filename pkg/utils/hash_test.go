package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "a@x.com", NormalizeEmail("  A@X.com "))
}

func TestHashEmailIsStableAcrossCase(t *testing.T) {
	h, err := NewEmailHasher("pepper")
	require.NoError(t, err)

	assert.Equal(t, h.Hash("a@x.com"), h.Hash(" A@x.COM"))
	assert.NotEqual(t, h.Hash("a@x.com"), h.Hash("b@x.com"))
	assert.Len(t, h.Hash("a@x.com"), 64)
	assert.NotContains(t, h.Hash("a@x.com"), "a@x.com")
}

func TestHashEmailDependsOnKey(t *testing.T) {
	a, err := HashEmail([]byte("one"), "a@x.com")
	require.NoError(t, err)
	b, err := HashEmail([]byte("two"), "a@x.com")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestNewEmailHasherRejectsLongKey(t *testing.T) {
	_, err := NewEmailHasher(strings.Repeat("k", 65))
	assert.Error(t, err)
}
