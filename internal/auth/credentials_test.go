package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCredentials(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		wantKind Kind
		wantKey  string
		wantURI  string
		wantErr  error
	}{
		{name: "apiKey field", doc: `{"apiKey":" AIza1 "}`, wantKind: KindAPIKey, wantKey: "AIza1"},
		{name: "key field", doc: `{"key":"AIza2"}`, wantKind: KindAPIKey, wantKey: "AIza2"},
		{
			name:     "api key wins over service account",
			doc:      `{"key":"AIza3","client_email":"a@b","private_key":"pem"}`,
			wantKind: KindAPIKey,
			wantKey:  "AIza3",
		},
		{
			name:     "service account default token uri",
			doc:      `{"client_email":"a@b","private_key":"pem"}`,
			wantKind: KindServiceAccount,
			wantURI:  DefaultTokenURI,
		},
		{
			name:     "service account custom token uri",
			doc:      `{"client_email":"a@b","private_key":"pem","token_uri":"https://token.example"}`,
			wantKind: KindServiceAccount,
			wantURI:  "https://token.example",
		},
		{name: "non-string key", doc: `{"apiKey":42}`, wantErr: ErrInvalidCredentials},
		{name: "empty object", doc: `{}`, wantErr: ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds, err := ParseCredentials([]byte(tt.doc))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, creds.Kind)
			assert.Equal(t, tt.wantKey, creds.APIKey)
			if tt.wantKind == KindServiceAccount {
				assert.Equal(t, "a@b", creds.ServiceAccount.ClientEmail)
				assert.Equal(t, tt.wantURI, creds.ServiceAccount.TokenURI)
			}
		})
	}
}

func TestParseCredentialsInvalidJSON(t *testing.T) {
	_, err := ParseCredentials([]byte("{"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON")
}
