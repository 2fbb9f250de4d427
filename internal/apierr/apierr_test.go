package apierr

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetail(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "google error envelope",
			body: `{"error":{"code":429,"message":"Quota exceeded","status":"RESOURCE_EXHAUSTED"}}`,
			want: "Quota exceeded",
		},
		{
			name: "oauth error",
			body: `{"error":"invalid_grant","error_description":"Invalid JWT Signature."}`,
			want: "invalid_grant: Invalid JWT Signature.",
		},
		{
			name: "plain text",
			body: "  upstream unavailable \n",
			want: "upstream unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detail([]byte(tt.body)))
		})
	}
}

func TestDetailTruncatesRawBody(t *testing.T) {
	body := strings.Repeat("я", 500)
	got := Detail([]byte(body))
	assert.Equal(t, MaxDetail+1, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))
}
