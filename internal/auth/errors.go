package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrCredentialsMissing is returned when no API key or credentials document is configured.
	ErrCredentialsMissing = errors.New("credentials are not configured")

	// ErrInvalidCredentials is returned when a credentials document has neither
	// an API key nor service-account fields.
	ErrInvalidCredentials = errors.New("credentials document has no apiKey/key or service account fields")

	// ErrInvalidPrivateKey is returned when the service account key cannot be parsed.
	ErrInvalidPrivateKey = errors.New("service account private key is not a valid RSA PEM key")
)

// CredentialsMissingError is user-actionable: the caller should point the
// user at the configuration.
type CredentialsMissingError struct {
	// Service is the upstream the credentials are for (e.g., "vision", "chat").
	Service string
}

func (e *CredentialsMissingError) Error() string {
	return fmt.Sprintf("auth: %s credentials are not configured", e.Service)
}

// Is makes errors.Is(err, ErrCredentialsMissing) match.
func (e *CredentialsMissingError) Is(target error) bool {
	return target == ErrCredentialsMissing
}

// TokenExchangeError is returned when the token endpoint rejects an assertion.
type TokenExchangeError struct {
	Status int
	Body   string // truncated excerpt
}

func (e *TokenExchangeError) Error() string {
	return fmt.Sprintf("auth: token exchange failed with HTTP %d: %s", e.Status, e.Body)
}
