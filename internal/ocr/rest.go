package ocr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/rs/zerolog"
	"google.golang.org/protobuf/encoding/protojson"

	"transhot/internal/apierr"
	"transhot/internal/auth"
	"transhot/internal/logger"
	"transhot/pkg/models"
)

const (
	// DefaultEndpoint is the Vision REST annotate endpoint.
	DefaultEndpoint = "https://vision.googleapis.com/v1/images:annotate"

	// MaxImageSizeBytes is the maximum inline image size (20MB)
	MaxImageSizeBytes = 20 * 1024 * 1024
)

// RESTRecognizer implements Recognizer against the Vision REST API.
type RESTRecognizer struct {
	endpoint string
	client   *http.Client
	log      zerolog.Logger
}

// NewRESTRecognizer creates a recognizer. Empty endpoint uses DefaultEndpoint,
// nil client uses http.DefaultClient.
func NewRESTRecognizer(endpoint string, client *http.Client) *RESTRecognizer {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &RESTRecognizer{
		endpoint: endpoint,
		client:   client,
		log:      logger.WithComponent("ocr-rest"),
	}
}

// Recognize implements Recognizer.
func (r *RESTRecognizer) Recognize(ctx context.Context, snap *models.Snapshot, tok auth.Token) (*models.OCRResult, error) {
	const op = "Recognize"
	startTime := time.Now()

	req, err := buildRequest(snap, tok)
	if err != nil {
		return nil, WrapOCRError(op, err, "")
	}

	body, err := protojson.Marshal(req)
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to encode request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	tok.Apply(httpReq)

	r.log.Debug().
		Str("hash", snap.Hash).
		Str("mime_type", snap.MimeType).
		Int("bytes", len(snap.Payload)).
		Msg("Calling Vision annotate")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, WrapOCRError(op, err, "Vision request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to read Vision response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		recErr := &RecognitionError{Status: resp.StatusCode, Detail: apierr.Detail(respBody)}
		r.log.Error().
			Int("status", resp.StatusCode).
			Str("detail", recErr.Detail).
			Str("hash", snap.Hash).
			Msg("Vision request rejected")
		return nil, recErr
	}

	var batch visionpb.BatchAnnotateImagesResponse
	if err := (protojson.UnmarshalOptions{DiscardUnknown: true}).Unmarshal(respBody, &batch); err != nil {
		return nil, WrapOCRError(op, err, "failed to decode Vision response")
	}

	result, err := firstResult(&batch, resp.StatusCode, snap)
	if err != nil {
		return nil, err
	}

	r.log.Info().
		Str("hash", snap.Hash).
		Int("blocks", len(result.Blocks)).
		Dur("duration", time.Since(startTime)).
		Msg("Text recognition completed")

	return result, nil
}

func buildRequest(snap *models.Snapshot, tok auth.Token) (*visionpb.BatchAnnotateImagesRequest, error) {
	if snap == nil || len(snap.Payload) == 0 {
		return nil, ErrEmptyImage
	}
	if len(snap.Payload) > MaxImageSizeBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrImageTooLarge, len(snap.Payload))
	}
	if tok.IsZero() {
		return nil, ErrMissingToken
	}
	return &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: snap.Payload},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_TEXT_DETECTION},
				},
			},
		},
	}, nil
}

// firstResult normalizes the single response of a one-image batch.
func firstResult(batch *visionpb.BatchAnnotateImagesResponse, status int, snap *models.Snapshot) (*models.OCRResult, error) {
	if len(batch.GetResponses()) == 0 {
		return Normalize(nil, snap.Width, snap.Height), nil
	}
	first := batch.GetResponses()[0]
	if e := first.GetError(); e != nil && e.GetMessage() != "" {
		return nil, &RecognitionError{Status: status, Detail: apierr.Excerpt([]byte(e.GetMessage()), apierr.MaxDetail)}
	}
	return Normalize(first, snap.Width, snap.Height), nil
}
