package tokens_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/technosupport/canteen-authz/internal/tokens"
)

// Round-trip: verify(make_token(e,s,t)) = {sub:e,sid:s,tid:t,...} within TTL.
func TestIssueVerifyRoundTrip(t *testing.T) {
	m := tokens.NewManager("test-secret", 60*time.Second)

	tok, exp, err := m.Issue("emp-1", "sess-1", "term-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(60*time.Second), exp, 2*time.Second)

	claims, err := m.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "emp-1", claims.EmployeeID)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.Equal(t, "term-1", claims.TerminalID)
}

func TestVerifyFailsAfterExpiry(t *testing.T) {
	m := tokens.NewManager("test-secret", -1*time.Second)

	tok, _, err := m.Issue("emp-1", "sess-1", "term-1")
	require.NoError(t, err)

	_, err = m.Verify(tok)
	assert.ErrorIs(t, err, tokens.ErrExpiredToken)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer := tokens.NewManager("secret-a", 60*time.Second)
	verifier := tokens.NewManager("secret-b", 60*time.Second)

	tok, _, err := issuer.Issue("emp-1", "sess-1", "term-1")
	require.NoError(t, err)

	_, err = verifier.Verify(tok)
	assert.ErrorIs(t, err, tokens.ErrInvalidToken)
}
