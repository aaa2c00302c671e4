package secret

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestGenerate_TooShort(t *testing.T) {
	_, err := Generate(MinBytes - 1)
	assert.Error(t, err)
}

func TestGenerate_Unique(t *testing.T) {
	a, err := Generate(32)
	require.NoError(t, err)
	b, err := Generate(32)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

// Feature: generate-secret, Property 1: Encoded Length
// *For any* requested size, the generated secret SHALL decode back to exactly
// that many bytes.
func TestGenerateLength_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(MinBytes, 256).Draw(t, "bytes")
		s, err := Generate(n)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		raw, err := base64.RawURLEncoding.DecodeString(s)
		if err != nil {
			t.Fatalf("decode %q: %v", s, err)
		}
		if len(raw) != n {
			t.Fatalf("expected %d bytes, got %d", n, len(raw))
		}
	})
}
