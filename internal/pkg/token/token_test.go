package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateParseRoundTrip(t *testing.T) {
	tokenString, err := Generate("conn-1", "secret")
	require.NoError(t, err)
	require.NotEmpty(t, tokenString)

	claims, err := Parse(tokenString, "secret")
	require.NoError(t, err)
	assert.Equal(t, "conn-1", claims.ConnectionID)
	assert.Equal(t, TokenIssuer, claims.Issuer)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	tokenString, err := Generate("conn-1", "secret")
	require.NoError(t, err)

	_, err = Parse(tokenString, "other-secret")
	assert.Error(t, err)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("not-a-token", "secret")
	assert.Error(t, err)
}
