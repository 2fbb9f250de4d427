// Package apierr extracts bounded, human-readable details from upstream
// HTTP error bodies.
package apierr

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// MaxDetail caps error details so logs and error strings stay small.
const MaxDetail = 140

// Excerpt trims body and truncates it to at most n runes.
func Excerpt(body []byte, n int) string {
	s := strings.TrimSpace(string(body))
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "…"
}

// Detail returns the message from a structured {"error":{"message":...}} or
// {"error":"...","error_description":"..."} body, falling back to a truncated
// raw excerpt.
func Detail(body []byte) string {
	var structured struct {
		Error json.RawMessage `json:"error"`
		Desc  string          `json:"error_description"`
	}
	if err := json.Unmarshal(body, &structured); err == nil && len(structured.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		}
		if json.Unmarshal(structured.Error, &nested) == nil && nested.Message != "" {
			return Excerpt([]byte(nested.Message), MaxDetail)
		}
		var code string
		if json.Unmarshal(structured.Error, &code) == nil && code != "" {
			if structured.Desc != "" {
				code += ": " + structured.Desc
			}
			return Excerpt([]byte(code), MaxDetail)
		}
	}
	return Excerpt(body, MaxDetail)
}
