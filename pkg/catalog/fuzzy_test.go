package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloseMatches(t *testing.T) {
	got, err := CloseMatches("appel", []string{"ape", "apple", "peach", "puppy"}, 3, 0.6)
	require.NoError(t, err)
	assert.Equal(t, []string{"apple", "ape"}, got)
}

func TestCloseMatchesLimit(t *testing.T) {
	got, err := CloseMatches("can", []string{"can", "cans", "scan", "canned"}, 2, 0.4)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "can", got[0])
}

func TestCloseMatchesTiesDescending(t *testing.T) {
	// "ab" and "ac" both score 2/3 against "a".
	got, err := CloseMatches("a", []string{"ab", "ac"}, 3, 0.4)
	require.NoError(t, err)
	assert.Equal(t, []string{"ac", "ab"}, got)
}

func TestCloseMatchesInvalid(t *testing.T) {
	_, err := CloseMatches("x", nil, 0, 0.5)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = CloseMatches("x", nil, 3, 1.5)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	got, err := CloseMatches("x", nil, 3, 0.5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 0.75, Similarity("abcd", "bcde"), 1e-9)
	assert.InDelta(t, 1.0, Similarity("glass", "glass"), 1e-9)
	assert.InDelta(t, 0.0, Similarity("abc", "xyz"), 1e-9)
}
