package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

func rsaKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = k
	})
	return testKey
}

func pkcs8PEM(t *testing.T, key *rsa.PrivateKey) string {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type tokenServer struct {
	*httptest.Server
	calls      atomic.Int32
	status     int
	expiresIn  int64
	assertions chan string
}

func newTokenServer(t *testing.T) *tokenServer {
	ts := &tokenServer{status: http.StatusOK, expiresIn: 3600, assertions: make(chan string, 10)}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := ts.calls.Add(1)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "urn:ietf:params:oauth:grant-type:jwt-bearer", r.PostForm.Get("grant_type"))
		ts.assertions <- r.PostForm.Get("assertion")

		if ts.status != http.StatusOK {
			w.WriteHeader(ts.status)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid JWT Signature."}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": fmt.Sprintf("ya29.token-%d", n),
			"token_type":   "Bearer",
			"expires_in":   ts.expiresIn,
		})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func serviceAccountDoc(t *testing.T, tokenURI string) []byte {
	t.Helper()
	doc, err := json.Marshal(map[string]string{
		"type":         "service_account",
		"client_email": "ocr@project.iam.gserviceaccount.com",
		"private_key":  pkcs8PEM(t, rsaKey(t)),
		"token_uri":    tokenURI,
	})
	require.NoError(t, err)
	return doc
}

func TestResolveVisionExplicitKeyWins(t *testing.T) {
	ts := newTokenServer(t)
	r := NewResolver(WithHTTPClient(ts.Client()))

	tok, err := r.ResolveVision(context.Background(), Material{
		APIKey:   " explicit ",
		Document: serviceAccountDoc(t, ts.URL),
	})
	require.NoError(t, err)
	assert.Equal(t, "explicit", tok.APIKey)
	assert.Equal(t, int32(0), ts.calls.Load())
}

func TestResolveVisionAPIKeyDocument(t *testing.T) {
	r := NewResolver()

	tok, err := r.ResolveVision(context.Background(), Material{Document: []byte(`{"key":"AIza-doc"}`)})
	require.NoError(t, err)
	assert.Equal(t, "AIza-doc", tok.APIKey)
}

func TestResolveVisionMissingCredentials(t *testing.T) {
	r := NewResolver()

	_, err := r.ResolveVision(context.Background(), Material{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCredentialsMissing)

	var missing *CredentialsMissingError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "vision", missing.Service)
}

func TestResolveChat(t *testing.T) {
	r := NewResolver()

	key, err := r.ResolveChat(" sk-test ")
	require.NoError(t, err)
	assert.Equal(t, "sk-test", key)

	_, err = r.ResolveChat("")
	assert.ErrorIs(t, err, ErrCredentialsMissing)
}

func TestResolveVisionServiceAccountExchange(t *testing.T) {
	ts := newTokenServer(t)
	clock := &fakeClock{now: time.Now().Truncate(time.Second)}
	r := NewResolver(WithHTTPClient(ts.Client()), WithClock(clock.Now))
	tokenURI := ts.URL + "/token"

	tok, err := r.ResolveVision(context.Background(), Material{Document: serviceAccountDoc(t, tokenURI)})
	require.NoError(t, err)
	require.NotNil(t, tok.Bearer)
	assert.Equal(t, "ya29.token-1", tok.Bearer.AccessToken)
	assert.Equal(t, clock.Now().Add(time.Hour), tok.Bearer.Expiry)

	assertion := <-ts.assertions
	parts := strings.Split(assertion, ".")
	require.Len(t, parts, 3)
	for _, p := range parts {
		assert.NotContains(t, p, "=")
	}

	header, err := base64.RawURLEncoding.DecodeString(parts[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"alg":"RS256","typ":"JWT"}`, string(header))

	parsed, err := jwt.Parse(assertion, func(*jwt.Token) (any, error) {
		return &rsaKey(t).PublicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	require.NoError(t, err)

	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, "ocr@project.iam.gserviceaccount.com", claims["iss"])
	assert.Equal(t, "ocr@project.iam.gserviceaccount.com", claims["sub"])
	assert.Equal(t, tokenURI, claims["aud"])
	assert.Equal(t, DefaultScope, claims["scope"])
	assert.EqualValues(t, clock.Now().Unix(), claims["iat"])
	assert.EqualValues(t, clock.Now().Add(time.Hour).Unix(), claims["exp"])
}

func TestResolveVisionCachesToken(t *testing.T) {
	ts := newTokenServer(t)
	clock := &fakeClock{now: time.Now()}
	r := NewResolver(WithHTTPClient(ts.Client()), WithClock(clock.Now))
	doc := serviceAccountDoc(t, ts.URL)

	first, err := r.ResolveVision(context.Background(), Material{Document: doc})
	require.NoError(t, err)

	clock.Advance(30 * time.Minute)
	second, err := r.ResolveVision(context.Background(), Material{Document: doc})
	require.NoError(t, err)

	assert.Equal(t, int32(1), ts.calls.Load())
	assert.Equal(t, first.Bearer.AccessToken, second.Bearer.AccessToken)
}

func TestResolveVisionRefreshesInsideSkew(t *testing.T) {
	ts := newTokenServer(t)
	clock := &fakeClock{now: time.Now()}
	r := NewResolver(WithHTTPClient(ts.Client()), WithClock(clock.Now))
	doc := serviceAccountDoc(t, ts.URL)

	_, err := r.ResolveVision(context.Background(), Material{Document: doc})
	require.NoError(t, err)

	// 10 seconds before expiry is inside the 30 second margin
	clock.Advance(time.Hour - 10*time.Second)
	tok, err := r.ResolveVision(context.Background(), Material{Document: doc})
	require.NoError(t, err)

	assert.Equal(t, int32(2), ts.calls.Load())
	assert.Equal(t, "ya29.token-2", tok.Bearer.AccessToken)
}

func TestResolveVisionExchangeRejected(t *testing.T) {
	ts := newTokenServer(t)
	ts.status = http.StatusUnauthorized
	r := NewResolver(WithHTTPClient(ts.Client()))

	_, err := r.ResolveVision(context.Background(), Material{Document: serviceAccountDoc(t, ts.URL)})
	require.Error(t, err)

	var exchangeErr *TokenExchangeError
	require.True(t, errors.As(err, &exchangeErr))
	assert.Equal(t, http.StatusUnauthorized, exchangeErr.Status)
	assert.Equal(t, "invalid_grant: Invalid JWT Signature.", exchangeErr.Body)
}

func TestResolveVisionInvalidPrivateKey(t *testing.T) {
	r := NewResolver()
	doc := []byte(`{"client_email":"a@b","private_key":"not a key"}`)

	_, err := r.ResolveVision(context.Background(), Material{Document: doc})
	assert.ErrorIs(t, err, ErrInvalidPrivateKey)
}

func TestTokenApply(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "https://vision.example/v1/images:annotate?alt=json", nil)
	Token{APIKey: "k1"}.Apply(req)
	assert.Equal(t, "k1", req.URL.Query().Get("key"))
	assert.Equal(t, "json", req.URL.Query().Get("alt"))
	assert.Empty(t, req.Header.Get("Authorization"))

	req = httptest.NewRequest(http.MethodPost, "https://vision.example/v1/images:annotate", nil)
	Token{Bearer: &oauth2.Token{AccessToken: "abc", TokenType: "Bearer"}}.Apply(req)
	assert.Equal(t, "Bearer abc", req.Header.Get("Authorization"))
	assert.Empty(t, req.URL.Query().Get("key"))
}

func TestTokenMetadata(t *testing.T) {
	k, v := Token{APIKey: "k1"}.Metadata()
	assert.Equal(t, "x-goog-api-key", k)
	assert.Equal(t, "k1", v)

	k, v = Token{Bearer: &oauth2.Token{AccessToken: "abc"}}.Metadata()
	assert.Equal(t, "authorization", k)
	assert.Equal(t, "Bearer abc", v)

	assert.True(t, Token{}.IsZero())
}
