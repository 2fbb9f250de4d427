// Package auth resolves credentials for the OCR and chat services.
//
// Vision credentials resolve in priority order: an explicit API key (no
// network cost), then a credentials document that is either API-key shaped or
// a service account. Service accounts are exchanged for a bearer token via the
// JWT-bearer grant; tokens live only in process memory and are reused until
// 30 seconds before they expire.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"transhot/internal/apierr"
	"transhot/internal/logger"
)

const (
	// DefaultScope is requested for exchanged tokens.
	DefaultScope = "https://www.googleapis.com/auth/cloud-platform"

	// ExpirySkew is subtracted from a token's expiry before reuse.
	ExpirySkew = 30 * time.Second

	jwtBearerGrant = "urn:ietf:params:oauth:grant-type:jwt-bearer"
)

// Material is the raw credential input for one resolution.
type Material struct {
	APIKey   string // explicit key, highest priority
	Document []byte // credentials JSON document
}

// Resolver turns credential material into request tokens.
type Resolver struct {
	client *http.Client
	scope  string
	now    func() time.Time
	log    zerolog.Logger

	mu     sync.Mutex
	tokens map[string]*oauth2.Token // by service account identity
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithHTTPClient sets the client used for token exchange.
func WithHTTPClient(c *http.Client) Option { return func(r *Resolver) { r.client = c } }

// WithScope overrides DefaultScope.
func WithScope(scope string) Option { return func(r *Resolver) { r.scope = scope } }

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(r *Resolver) { r.now = now } }

// NewResolver creates a Resolver with an empty token cache.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		client: http.DefaultClient,
		scope:  DefaultScope,
		now:    time.Now,
		log:    logger.WithComponent("auth"),
		tokens: make(map[string]*oauth2.Token),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// ResolveVision returns the token for an OCR call.
func (r *Resolver) ResolveVision(ctx context.Context, m Material) (Token, error) {
	if key := strings.TrimSpace(m.APIKey); key != "" {
		return Token{APIKey: key}, nil
	}
	if len(strings.TrimSpace(string(m.Document))) == 0 {
		return Token{}, &CredentialsMissingError{Service: "vision"}
	}

	creds, err := ParseCredentials(m.Document)
	if err != nil {
		return Token{}, err
	}
	if creds.Kind == KindAPIKey {
		return Token{APIKey: creds.APIKey}, nil
	}

	bearer, err := r.serviceAccountToken(ctx, creds.ServiceAccount)
	if err != nil {
		return Token{}, err
	}
	return Token{Bearer: bearer}, nil
}

// ResolveChat returns the API key for the chat service.
func (r *Resolver) ResolveChat(apiKey string) (string, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return "", &CredentialsMissingError{Service: "chat"}
	}
	return key, nil
}

func (r *Resolver) serviceAccountToken(ctx context.Context, sa *ServiceAccount) (*oauth2.Token, error) {
	cacheKey := sa.ClientEmail

	r.mu.Lock()
	cached := r.tokens[cacheKey]
	r.mu.Unlock()

	if cached != nil && r.now().Before(cached.Expiry.Add(-ExpirySkew)) {
		return cached, nil
	}

	token, err := r.exchange(ctx, sa)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.tokens[cacheKey] = token
	r.mu.Unlock()

	return token, nil
}

func (r *Resolver) exchange(ctx context.Context, sa *ServiceAccount) (*oauth2.Token, error) {
	const op = "exchange"

	now := r.now()
	assertion, err := SignAssertion(sa, r.scope, now)
	if err != nil {
		return nil, err
	}

	form := url.Values{
		"grant_type": {jwtBearerGrant},
		"assertion":  {assertion},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sa.TokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	r.log.Debug().
		Str("client_email", sa.ClientEmail).
		Str("token_uri", sa.TokenURI).
		Msg("Exchanging service account assertion")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: token request failed: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read token response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		r.log.Error().
			Int("status", resp.StatusCode).
			Str("client_email", sa.ClientEmail).
			Msg("Token exchange rejected")
		return nil, &TokenExchangeError{Status: resp.StatusCode, Body: apierr.Detail(body)}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%s: invalid token response: %w", op, err)
	}
	if payload.AccessToken == "" {
		return nil, &TokenExchangeError{Status: resp.StatusCode, Body: "response has no access_token"}
	}

	tokenType := payload.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	token := &oauth2.Token{
		AccessToken: payload.AccessToken,
		TokenType:   tokenType,
		Expiry:      now.Add(time.Duration(payload.ExpiresIn) * time.Second),
	}

	r.log.Info().
		Str("client_email", sa.ClientEmail).
		Time("expires_at", token.Expiry).
		Msg("Service account token issued")

	return token, nil
}
