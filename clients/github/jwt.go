package github

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// signAppAssertion builds the RS256-signed assertion GitHub accepts for
// app authentication. The issued-at claim is backdated 60 seconds to
// absorb clock skew with GitHub's verifier; 10 minutes is the maximum
// lifetime GitHub accepts for this assertion type.
func signAppAssertion(appID string, privateKeyPEM []byte) (string, error) {
	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return "", fmt.Errorf("failed to parse private key: %w", err)
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iat": jwt.NewNumericDate(now.Add(-60 * time.Second)),
		"exp": jwt.NewNumericDate(now.Add(10 * time.Minute)),
		"iss": appID,
	})

	assertion, err := token.SignedString(privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign assertion: %w", err)
	}

	return assertion, nil
}
