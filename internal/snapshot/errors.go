package snapshot

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedElement is returned for media without a byte-extraction strategy.
	ErrUnsupportedElement = errors.New("unsupported element")

	// ErrEmptyPayload is returned when a fetch succeeded but produced no bytes.
	ErrEmptyPayload = errors.New("element has no image bytes")

	// ErrFetchFailed is returned when neither direct nor privileged retrieval worked.
	ErrFetchFailed = errors.New("failed to retrieve element bytes")
)

// UnsupportedElementError reports an element the pipeline cannot snapshot.
// It is not retryable.
type UnsupportedElementError struct {
	Kind string
	Src  string
}

func (e *UnsupportedElementError) Error() string {
	return fmt.Sprintf("snapshot: unsupported element %s (%s)", e.Kind, e.Src)
}

// Is makes errors.Is(err, ErrUnsupportedElement) match.
func (e *UnsupportedElementError) Is(target error) bool {
	return target == ErrUnsupportedElement
}

// FetchError wraps errors with the retrieval path that failed.
type FetchError struct {
	// Op is the retrieval step that failed (e.g., "direct", "privileged").
	Op string

	// URL is the source that was requested.
	URL string

	// Err is the underlying error.
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("snapshot: %s fetch of %s failed: %v", e.Op, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
