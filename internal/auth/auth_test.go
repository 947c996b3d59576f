package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueVerify_RoundTrip(t *testing.T) {
	m := NewManager("test-secret")

	token, err := m.Issue("participant-42")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	pid, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "participant-42", pid)
}

func TestVerify_RejectsGarbageAndForeignTokens(t *testing.T) {
	m := NewManager("test-secret")

	_, err := m.Verify("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewManager("different-secret")
	foreign, err := other.Issue("participant-42")
	require.NoError(t, err)

	_, err = m.Verify(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", hash)

	assert.NoError(t, CheckPassword(hash, "hunter2"))
	assert.ErrorIs(t, CheckPassword(hash, "wrong"), ErrInvalidCredentials)
}
