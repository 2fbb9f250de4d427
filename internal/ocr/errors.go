package ocr

import (
	"errors"
	"fmt"
)

// Common OCR processing errors
var (
	// ErrImageTooLarge is returned when the image exceeds the inline size limit.
	ErrImageTooLarge = errors.New("image exceeds the maximum inline size (20MB)")

	// ErrEmptyImage is returned when the snapshot carries no bytes.
	ErrEmptyImage = errors.New("image payload is empty")

	// ErrMissingToken is returned when no credential was supplied for the call.
	ErrMissingToken = errors.New("no credential supplied for the Vision call")
)

// RecognitionError is returned when the Vision service rejects a request.
type RecognitionError struct {
	// Status is the HTTP status (or the HTTP equivalent of a gRPC code).
	Status int

	// Detail is the upstream message, truncated.
	Detail string
}

// Error implements the error interface.
func (e *RecognitionError) Error() string {
	return fmt.Sprintf("ocr: recognition failed with status %d: %s", e.Status, e.Detail)
}

// OCRError wraps errors with additional context about the OCR processing failure.
type OCRError struct {
	// Op is the operation that failed (e.g., "Recognize", "decodeResponse").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *OCRError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("ocr: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("ocr: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *OCRError) Unwrap() error {
	return e.Err
}

// WrapOCRError wraps an error as an OCRError unless it already is one or is a RecognitionError.
func WrapOCRError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var ocrErr *OCRError
	var recErr *RecognitionError
	if errors.As(err, &ocrErr) || errors.As(err, &recErr) {
		return err
	}

	return &OCRError{Op: op, Err: err, Details: details}
}
