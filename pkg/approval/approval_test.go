package approval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_SignToken_Format(t *testing.T) {
	g := &Gate{hmacKey: []byte("test-key")}
	token, err := g.signToken("approval-1", "a")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, "apr:a:"))
	assert.Len(t, strings.TrimPrefix(token, "apr:a:"), 32)
}

func TestGate_SignToken_RejectPrefix(t *testing.T) {
	g := &Gate{hmacKey: []byte("test-key")}
	token, err := g.signToken("approval-1", "r")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, "apr:r:"))
}

func TestVerifyToken_MatchesExactStoredToken(t *testing.T) {
	assert.True(t, verifyToken("apr:a:deadbeef", "apr:a:deadbeef"))
	assert.False(t, verifyToken("apr:a:deadbeef", "apr:a:000000"))
}

func TestGate_SignToken_UniquePerCall(t *testing.T) {
	g := &Gate{hmacKey: []byte("test-key")}
	t1, err := g.signToken("approval-1", "a")
	require.NoError(t, err)
	t2, err := g.signToken("approval-1", "a")
	require.NoError(t, err)
	assert.NotEqual(t, t1, t2, "tokens should be unique even for the same approval+decision due to nonce")
}
