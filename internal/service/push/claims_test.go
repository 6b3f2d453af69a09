package push_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatfabric/notify-server/internal/domain/ids"
	"github.com/chatfabric/notify-server/internal/service/push"
)

type testKeypair struct {
	priv   *rsa.PrivateKey
	pubPEM []byte
}

func newTestKeypair(t *testing.T) testKeypair {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pubBytes, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	return testKeypair{priv: priv, pubPEM: pubPEM}
}

func signClaims(t *testing.T, kp testKeypair, claims *push.UserClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	s, err := tok.SignedString(kp.priv)
	require.NoError(t, err)
	return s
}

func baseClaims(userID ids.UserID, status string, expiresIn time.Duration) *push.UserClaims {
	return &push.UserClaims{
		UserID:      userID,
		WorkspaceID: 1,
		Status:      status,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		},
	}
}

func TestVerifyAcceptsValidToken(t *testing.T) {
	kp := newTestKeypair(t)
	verifier, err := push.NewTokenVerifier(kp.pubPEM)
	require.NoError(t, err)

	token := signClaims(t, kp, baseClaims(42, "active", time.Hour))
	claims, err := verifier.Verify(token)
	require.NoError(t, err)
	assert.EqualValues(t, 42, claims.UserID)
}

func TestVerifyRejectsMissingToken(t *testing.T) {
	kp := newTestKeypair(t)
	verifier, err := push.NewTokenVerifier(kp.pubPEM)
	require.NoError(t, err)

	_, err = verifier.Verify("")
	require.Error(t, err)
	var ae *push.AuthError
	require.ErrorAs(t, err, &ae)
	assert.False(t, ae.Forbidden, "missing token maps to 401")
}

func TestVerifyRejectsMalformedToken(t *testing.T) {
	kp := newTestKeypair(t)
	verifier, err := push.NewTokenVerifier(kp.pubPEM)
	require.NoError(t, err)

	_, err = verifier.Verify("not-a-jwt")
	require.Error(t, err)
	var ae *push.AuthError
	require.ErrorAs(t, err, &ae)
	assert.False(t, ae.Forbidden)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	kp := newTestKeypair(t)
	verifier, err := push.NewTokenVerifier(kp.pubPEM)
	require.NoError(t, err)

	token := signClaims(t, kp, baseClaims(42, "active", -time.Hour))
	_, err = verifier.Verify(token)
	require.Error(t, err)
	var ae *push.AuthError
	require.ErrorAs(t, err, &ae)
	assert.False(t, ae.Forbidden, "expired token maps to 401")
}

func TestVerifyRejectsRevokedStatusWithForbidden(t *testing.T) {
	kp := newTestKeypair(t)
	verifier, err := push.NewTokenVerifier(kp.pubPEM)
	require.NoError(t, err)

	token := signClaims(t, kp, baseClaims(42, "revoked", time.Hour))
	_, err = verifier.Verify(token)
	require.Error(t, err)
	var ae *push.AuthError
	require.ErrorAs(t, err, &ae)
	assert.True(t, ae.Forbidden, "revoked status maps to 403, not 401")
}

func TestVerifyRejectsTokenSignedByAnotherKey(t *testing.T) {
	kp := newTestKeypair(t)
	other := newTestKeypair(t)
	verifier, err := push.NewTokenVerifier(kp.pubPEM)
	require.NoError(t, err)

	token := signClaims(t, other, baseClaims(42, "active", time.Hour))
	_, err = verifier.Verify(token)
	require.Error(t, err)
}
