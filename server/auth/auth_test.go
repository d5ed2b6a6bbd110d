package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignAndAuthenticate(t *testing.T) {
	a := NewAuthenticator("secret")

	token, err := a.SignToken(42, "acme", time.Hour)
	require.NoError(t, err)

	claims, err := a.Authenticate("Bearer " + token)
	require.NoError(t, err)
	require.EqualValues(t, 42, claims.UserID)
	require.Equal(t, "acme", claims.OrganizationID)
}

func TestAuthenticateRejectsMissingBearer(t *testing.T) {
	a := NewAuthenticator("secret")

	_, err := a.Authenticate("")
	require.Error(t, err)

	_, err = a.Authenticate("Basic dXNlcjpwYXNz")
	require.Error(t, err)
}

func TestAuthenticateRejectsWrongSecret(t *testing.T) {
	token, err := NewAuthenticator("right").SignToken(1, "", time.Hour)
	require.NoError(t, err)

	_, err = NewAuthenticator("wrong").Authenticate("Bearer " + token)
	require.Error(t, err)
}

func TestAuthenticateRejectsExpiredToken(t *testing.T) {
	a := NewAuthenticator("secret")
	token, err := a.SignToken(1, "", -time.Minute)
	require.NoError(t, err)

	_, err = a.Authenticate("Bearer " + token)
	require.Error(t, err)
}
