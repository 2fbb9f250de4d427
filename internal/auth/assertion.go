package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AssertionLifetime is the validity window requested for signed assertions.
const AssertionLifetime = time.Hour

// SignAssertion builds an RS256 JWT-bearer assertion for sa:
// header {alg: RS256, typ: JWT}, claims {iss, sub, aud, scope, iat, exp}.
func SignAssertion(sa *ServiceAccount, scope string, now time.Time) (string, error) {
	const op = "SignAssertion"

	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(sa.PrivateKey))
	if err != nil {
		return "", fmt.Errorf("%s: %w: %v", op, ErrInvalidPrivateKey, err)
	}

	claims := jwt.MapClaims{
		"iss":   sa.ClientEmail,
		"sub":   sa.ClientEmail,
		"aud":   sa.TokenURI,
		"scope": scope,
		"iat":   now.Unix(),
		"exp":   now.Add(AssertionLifetime).Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("%s: failed to sign assertion: %w", op, err)
	}
	return signed, nil
}
