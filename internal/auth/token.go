package auth

import (
	"net/http"

	"golang.org/x/oauth2"
)

// Token authorizes one upstream call: either an API key sent as a query
// parameter, or a bearer token sent in the Authorization header.
type Token struct {
	APIKey string
	Bearer *oauth2.Token
}

// IsZero reports whether the token carries no credential.
func (t Token) IsZero() bool {
	return t.APIKey == "" && (t.Bearer == nil || t.Bearer.AccessToken == "")
}

// Apply attaches the credential to req.
func (t Token) Apply(req *http.Request) {
	if t.APIKey != "" {
		q := req.URL.Query()
		q.Set("key", t.APIKey)
		req.URL.RawQuery = q.Encode()
		return
	}
	if t.Bearer != nil {
		t.Bearer.SetAuthHeader(req)
	}
}

// Metadata returns the gRPC metadata pair carrying the credential.
func (t Token) Metadata() (key, value string) {
	if t.APIKey != "" {
		return "x-goog-api-key", t.APIKey
	}
	if t.Bearer != nil {
		return "authorization", t.Bearer.Type() + " " + t.Bearer.AccessToken
	}
	return "", ""
}
