package security

import (
	"testing"
	"time"

	"github.com/fernet/fernet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) string {
	t.Helper()
	var k fernet.Key
	require.NoError(t, k.Generate())
	return k.Encode()
}

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(4)

	hashed, err := h.Hash("Password1!")
	require.NoError(t, err)
	assert.NotEqual(t, "Password1!", hashed)

	assert.NoError(t, h.Verify("Password1!", hashed))
	assert.ErrorIs(t, h.Verify("wrong", hashed), ErrPasswordMismatch)
}

func TestTokenRoundTrip(t *testing.T) {
	svc := NewTokenService("secret", time.Hour)

	tok, err := svc.Issue("user-1")
	require.NoError(t, err)

	sub, err := svc.Subject(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)
}

func TestTokenRejectsExpiredAndForeign(t *testing.T) {
	svc := NewTokenService("secret", time.Hour)

	expired, err := svc.IssueWithTTL("user-1", -time.Minute)
	require.NoError(t, err)
	_, err = svc.Subject(expired)
	assert.Error(t, err)

	other := NewTokenService("other-secret", time.Hour)
	foreign, err := other.Issue("user-1")
	require.NoError(t, err)
	_, err = svc.Subject(foreign)
	assert.Error(t, err)

	_, err = svc.Subject("not-a-token")
	assert.Error(t, err)
}

func TestSealerRoundTrip(t *testing.T) {
	s, err := NewSealer(newKey(t))
	require.NoError(t, err)

	sealed, err := s.Seal("hi")
	require.NoError(t, err)
	assert.NotEqual(t, "hi", sealed)

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "hi", plain)
}

func TestSealerOpensWithPreviousKey(t *testing.T) {
	oldKey := newKey(t)
	old, err := NewSealer(oldKey)
	require.NoError(t, err)
	sealed, err := old.Seal("rotated")
	require.NoError(t, err)

	current, err := NewSealer(newKey(t), oldKey)
	require.NoError(t, err)
	plain, err := current.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "rotated", plain)

	fresh, err := NewSealer(newKey(t))
	require.NoError(t, err)
	_, err = fresh.Open(sealed)
	assert.Error(t, err)
}

func TestNewSealerRejectsBadKey(t *testing.T) {
	_, err := NewSealer("short")
	assert.Error(t, err)
}
