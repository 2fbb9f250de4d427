package auth

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultTokenURI is used when a service account document omits token_uri.
const DefaultTokenURI = "https://oauth2.googleapis.com/token"

// Kind classifies a credentials document.
type Kind string

const (
	KindAPIKey         Kind = "apiKey"
	KindServiceAccount Kind = "serviceAccount"
)

// ServiceAccount holds the fields needed to sign a JWT-bearer assertion.
type ServiceAccount struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri,omitempty"`
}

// Credentials is either an API key or a service account.
type Credentials struct {
	Kind           Kind            `json:"type"`
	APIKey         string          `json:"apiKey,omitempty"`
	ServiceAccount *ServiceAccount `json:"serviceAccount,omitempty"`
}

// ParseCredentials classifies a credentials document. An apiKey or key
// field wins over service-account fields.
func ParseCredentials(doc []byte) (*Credentials, error) {
	const op = "ParseCredentials"

	var raw struct {
		APIKey      any    `json:"apiKey"`
		Key         any    `json:"key"`
		ClientEmail any    `json:"client_email"`
		PrivateKey  any    `json:"private_key"`
		TokenURI    string `json:"token_uri"`
	}
	if err := json.Unmarshal(doc, &raw); err != nil {
		return nil, fmt.Errorf("%s: invalid JSON: %w", op, err)
	}

	for _, candidate := range []any{raw.APIKey, raw.Key} {
		if key, ok := candidate.(string); ok && strings.TrimSpace(key) != "" {
			return &Credentials{Kind: KindAPIKey, APIKey: strings.TrimSpace(key)}, nil
		}
	}

	email, emailOK := raw.ClientEmail.(string)
	key, keyOK := raw.PrivateKey.(string)
	if emailOK && keyOK && email != "" && key != "" {
		tokenURI := raw.TokenURI
		if tokenURI == "" {
			tokenURI = DefaultTokenURI
		}
		return &Credentials{
			Kind: KindServiceAccount,
			ServiceAccount: &ServiceAccount{
				ClientEmail: email,
				PrivateKey:  key,
				TokenURI:    tokenURI,
			},
		}, nil
	}

	return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
}
