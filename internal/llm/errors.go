package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"transhot/internal/apierr"
)

// Stages reported in TranslationError.
const (
	StageContext   = "context"
	StageTranslate = "translate"
)

var (
	// ErrMalformedTranslation marks a reply no splitter could break into
	// more than one segment. It is logged, never returned.
	ErrMalformedTranslation = errors.New("translation reply could not be split into segments")

	// ErrEmptyReply is returned when the service answers without any text.
	ErrEmptyReply = errors.New("chat service returned an empty reply")

	// ErrMissingAPIKey is returned when no chat API key was supplied.
	ErrMissingAPIKey = errors.New("chat API key is required")
)

// TranslationError is returned when the chat service rejects a request.
type TranslationError struct {
	Stage  string // StageContext or StageTranslate
	Status int    // HTTP status, 0 for transport failures
	Detail string
	Err    error
}

// Error implements the error interface.
func (e *TranslationError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("llm: %s failed with status %d: %s", e.Stage, e.Status, e.Detail)
	}
	return fmt.Sprintf("llm: %s failed: %s", e.Stage, e.Detail)
}

// Unwrap returns the underlying error.
func (e *TranslationError) Unwrap() error {
	return e.Err
}

// wrapChatError converts go-openai errors into TranslationError.
func wrapChatError(stage string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &TranslationError{
			Stage:  stage,
			Status: apiErr.HTTPStatusCode,
			Detail: apierr.Excerpt([]byte(apiErr.Message), apierr.MaxDetail),
			Err:    err,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := ""
		if reqErr.Err != nil {
			detail = reqErr.Err.Error()
		}
		return &TranslationError{
			Stage:  stage,
			Status: reqErr.HTTPStatusCode,
			Detail: apierr.Excerpt([]byte(detail), apierr.MaxDetail),
			Err:    err,
		}
	}

	return &TranslationError{
		Stage:  stage,
		Detail: apierr.Excerpt([]byte(err.Error()), apierr.MaxDetail),
		Err:    err,
	}
}
