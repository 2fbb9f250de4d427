package ocr

import (
	"context"
	"net/http"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"transhot/internal/apierr"
	"transhot/internal/auth"
	"transhot/internal/logger"
	"transhot/pkg/models"
)

// GRPCRecognizer implements Recognizer using the Vision ImageAnnotator client.
// The client is created without ambient credentials; each call carries the
// resolved token as metadata.
type GRPCRecognizer struct {
	client *vision.ImageAnnotatorClient
	log    zerolog.Logger
}

// NewGRPCRecognizer dials the Vision API. endpoint may be empty.
func NewGRPCRecognizer(ctx context.Context, endpoint string) (*GRPCRecognizer, error) {
	const op = "NewGRPCRecognizer"

	opts := []option.ClientOption{option.WithoutAuthentication()}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}

	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to create Vision client")
	}

	return NewGRPCRecognizerWithClient(client), nil
}

// NewGRPCRecognizerWithClient wraps an existing client (for testing).
func NewGRPCRecognizerWithClient(client *vision.ImageAnnotatorClient) *GRPCRecognizer {
	return &GRPCRecognizer{
		client: client,
		log:    logger.WithComponent("ocr-grpc"),
	}
}

// Recognize implements Recognizer.
func (g *GRPCRecognizer) Recognize(ctx context.Context, snap *models.Snapshot, tok auth.Token) (*models.OCRResult, error) {
	const op = "Recognize"
	startTime := time.Now()

	req, err := buildRequest(snap, tok)
	if err != nil {
		return nil, WrapOCRError(op, err, "")
	}

	key, value := tok.Metadata()
	ctx = metadata.AppendToOutgoingContext(ctx, key, value)

	resp, err := g.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		if st, ok := status.FromError(err); ok {
			recErr := &RecognitionError{
				Status: httpStatus(st.Code()),
				Detail: apierr.Excerpt([]byte(st.Message()), apierr.MaxDetail),
			}
			g.log.Error().
				Int("status", recErr.Status).
				Str("code", st.Code().String()).
				Str("hash", snap.Hash).
				Msg("Vision call rejected")
			return nil, recErr
		}
		return nil, WrapOCRError(op, err, "Vision API call failed")
	}

	result, err := firstResult(resp, http.StatusOK, snap)
	if err != nil {
		return nil, err
	}

	g.log.Info().
		Str("hash", snap.Hash).
		Int("blocks", len(result.Blocks)).
		Dur("duration", time.Since(startTime)).
		Msg("Text recognition completed")

	return result, nil
}

// Close closes the underlying Vision client.
func (g *GRPCRecognizer) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// httpStatus maps gRPC codes to the HTTP status the REST surface would return.
func httpStatus(code codes.Code) int {
	switch code {
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Unimplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
