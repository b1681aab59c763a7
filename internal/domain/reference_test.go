package domain

import (
	"strings"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReferenceTag(t *testing.T) {
	tests := []string{"latest", "v1.0.0", "release_candidate", "1.2.3-alpha.1", "V2"}
	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			ref, err := ParseReference(raw)
			require.NoError(t, err)
			assert.False(t, ref.IsDigest())
			assert.Equal(t, raw, ref.Tag())
			assert.Equal(t, raw, ref.String())
		})
	}
}

func TestParseReferenceDigest(t *testing.T) {
	d := digest.FromString("content")
	ref, err := ParseReference(d.String())
	require.NoError(t, err)
	assert.True(t, ref.IsDigest())
	assert.Equal(t, d, ref.Digest())
	assert.Equal(t, d.String(), ref.String())
	assert.Empty(t, ref.Tag())
}

func TestParseReferenceInvalid(t *testing.T) {
	tests := []string{
		"",
		".startswithdot",
		"-startswithdash",
		"has space",
		"sha256:short", // digest grammar but truncated hex
		"sha256:zzzz",  // digest grammar with bad hex
		strings.Repeat("a", 129),
	}
	for _, raw := range tests {
		_, err := ParseReference(raw)
		assert.ErrorIs(t, err, ErrReferenceInvalid, "reference %q", raw)
	}
}

func TestReferenceFromDigest(t *testing.T) {
	d := digest.FromString("x")
	ref := ReferenceFromDigest(d)
	assert.True(t, ref.IsDigest())
	assert.Equal(t, d, ref.Digest())
}
