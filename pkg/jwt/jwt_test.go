package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	m, err := NewManager("s3cret", time.Hour, "canvas")
	require.NoError(t, err)

	token, exp, err := m.Generate("u-1", "alice", "Alice")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Minute)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "Alice", claims.Name())
	assert.Equal(t, "canvas", claims.Issuer)
}

func TestValidateRejectsForeignSecret(t *testing.T) {
	a, err := NewManager("one", time.Hour, "canvas")
	require.NoError(t, err)
	b, err := NewManager("two", time.Hour, "canvas")
	require.NoError(t, err)

	token, _, err := a.Generate("u-1", "alice", "")
	require.NoError(t, err)

	_, err = b.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = a.ValidateToken("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateExpired(t *testing.T) {
	m, err := NewManager("s3cret", time.Minute, "canvas")
	require.NoError(t, err)

	issued := time.Now().Add(-time.Hour)
	m.now = func() time.Time { return issued }
	token, _, err := m.Generate("u-1", "alice", "")
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestNameFallbacks(t *testing.T) {
	assert.Equal(t, "bob", (&Claims{UserID: "u", Username: "bob"}).Name())
	assert.Equal(t, "u", (&Claims{UserID: "u"}).Name())
}

func TestNewManagerRequiresSecret(t *testing.T) {
	_, err := NewManager("", time.Hour, "canvas")
	assert.ErrorIs(t, err, ErrEmptySecret)
}

func TestPeekReadsClaimsWithoutSecret(t *testing.T) {
	m, err := NewManager("secret", time.Hour, "test")
	require.NoError(t, err)

	token, _, err := m.Generate("u1", "alice", "Alice")
	require.NoError(t, err)

	claims, err := Peek(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "Alice", claims.Name())

	_, err = Peek("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
