// Package ocr provides text recognition for image snapshots using the Google Cloud Vision API.
//
// Two transports share one normalization step:
//   - REST (default): POST {requests:[{image:{content}, features:[{type:TEXT_DETECTION}]}]}
//     to images:annotate, with the API key as a query parameter or a bearer token header.
//   - gRPC: the Vision ImageAnnotator client, with the same credential sent as call metadata.
//
// Normalization walks page → block → paragraph → word → symbol. Symbols are
// concatenated into words, words joined with single spaces, paragraphs joined
// with newlines. Blocks without text, or whose bounding rectangle has no area,
// are dropped.
//
// Cloud Vision API Limitations:
//   - Maximum inline image size: 20MB
//   - Normalized vertices require the image's natural dimensions to be scaled to pixels
package ocr

import (
	"context"

	"transhot/internal/auth"
	"transhot/pkg/models"
)

// Recognizer extracts text blocks from an image snapshot.
type Recognizer interface {
	// Recognize runs text detection on snap, authorized by tok.
	// Non-2xx responses fail with *RecognitionError.
	Recognize(ctx context.Context, snap *models.Snapshot, tok auth.Token) (*models.OCRResult, error)
}
