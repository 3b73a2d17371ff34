package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	t.Run("generates 64 character hex string", func(t *testing.T) {
		token, err := GenerateToken()
		require.NoError(t, err)
		assert.Len(t, token, 64)
	})

	t.Run("generates unique tokens", func(t *testing.T) {
		token1, _ := GenerateToken()
		token2, _ := GenerateToken()
		assert.NotEqual(t, token1, token2)
	})

	t.Run("generates valid hex", func(t *testing.T) {
		token, _ := GenerateToken()
		for _, c := range token {
			assert.True(t, (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f'))
		}
	})
}

func TestHashToken(t *testing.T) {
	t.Run("returns 64 character hex string", func(t *testing.T) {
		hash := HashToken("test-token")
		assert.Len(t, hash, 64)
	})

	t.Run("same input produces same hash", func(t *testing.T) {
		hash1 := HashToken("test-token")
		hash2 := HashToken("test-token")
		assert.Equal(t, hash1, hash2)
	})

	t.Run("different input produces different hash", func(t *testing.T) {
		hash1 := HashToken("token-1")
		hash2 := HashToken("token-2")
		assert.NotEqual(t, hash1, hash2)
	})
}

func TestHmacSHA256(t *testing.T) {
	t.Run("different secret produces different result", func(t *testing.T) {
		assert.NotEqual(t, HmacSHA256("secret1", "token"), HmacSHA256("secret2", "token"))
	})

	t.Run("produces expected HMAC", func(t *testing.T) {
		result := HmacSHA256("key", "The quick brown fox jumps over the lazy dog")
		assert.Equal(t, "f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8", result)
	})
}

func TestPseudonym(t *testing.T) {
	assert.Equal(t, "", Pseudonym(""))
	assert.Len(t, Pseudonym("visitor-1"), 12)
	assert.Equal(t, Pseudonym("visitor-1"), Pseudonym("visitor-1"))
	assert.NotEqual(t, Pseudonym("visitor-1"), Pseudonym("visitor-2"))
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)

	assert.True(t, CheckPasswordHash("correct horse", hash))
	assert.False(t, CheckPasswordHash("wrong horse", hash))
	assert.False(t, CheckPasswordHash("correct horse", "not-a-hash"))
}

func TestConstantTimeEqual(t *testing.T) {
	t.Run("returns true for equal strings", func(t *testing.T) {
		assert.True(t, ConstantTimeEqual("abc", "abc"))
	})

	t.Run("returns false for different strings", func(t *testing.T) {
		assert.False(t, ConstantTimeEqual("abc", "def"))
	})

	t.Run("returns false for different lengths", func(t *testing.T) {
		assert.False(t, ConstantTimeEqual("abc", "abcd"))
	})

	t.Run("returns true for empty strings", func(t *testing.T) {
		assert.True(t, ConstantTimeEqual("", ""))
	})
}

func TestIsValidVisitorID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"v1", true},
		{"f47ac10b-58cc-4372-a567-0e02b2c3d479", true},
		{"visitor_abc-123", true},
		{"", false},
		{"has space", false},
		{"semi;colon", false},
		{string(make([]byte, 129)), false},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, IsValidVisitorID(tc.id), "id %q", tc.id)
	}
}

func TestIsValidUUID(t *testing.T) {
	assert.True(t, IsValidUUID("f47ac10b-58cc-4372-a567-0e02b2c3d479"))
	assert.False(t, IsValidUUID("F47AC10B-58CC-4372-A567-0E02B2C3D479"))
	assert.False(t, IsValidUUID(""))
	assert.False(t, IsValidUUID("not-a-uuid"))
}
