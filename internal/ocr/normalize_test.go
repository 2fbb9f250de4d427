package ocr

import (
	"net/http"
	"testing"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func word(text string) *visionpb.Word {
	return &visionpb.Word{Symbols: []*visionpb.Symbol{{Text: text}}}
}

func TestNormalize_NormalizedVertices(t *testing.T) {
	resp := &visionpb.AnnotateImageResponse{
		FullTextAnnotation: &visionpb.TextAnnotation{
			Pages: []*visionpb.Page{{
				Blocks: []*visionpb.Block{{
					BoundingBox: &visionpb.BoundingPoly{NormalizedVertices: []*visionpb.NormalizedVertex{
						{X: 0.1, Y: 0.5}, {X: 0.6, Y: 0.5}, {X: 0.6, Y: 0.75}, {X: 0.1, Y: 0.75},
					}},
					Paragraphs: []*visionpb.Paragraph{{Words: []*visionpb.Word{word("Sale"), word("50%")}}},
				}},
			}},
		},
	}

	result := Normalize(resp, 400, 200)
	require.Len(t, result.Blocks, 1)
	b := result.Blocks[0]
	assert.Equal(t, "Sale 50%", b.Text)
	assert.InDelta(t, 40, b.Bounds.X, 0.01)
	assert.InDelta(t, 100, b.Bounds.Y, 0.01)
	assert.InDelta(t, 200, b.Bounds.Width, 0.01)
	assert.InDelta(t, 50, b.Bounds.Height, 0.01)
}

func TestNormalize_NormalizedVerticesWithoutDimensions(t *testing.T) {
	resp := &visionpb.AnnotateImageResponse{
		FullTextAnnotation: &visionpb.TextAnnotation{
			Pages: []*visionpb.Page{{
				Blocks: []*visionpb.Block{{
					BoundingBox: &visionpb.BoundingPoly{NormalizedVertices: []*visionpb.NormalizedVertex{
						{X: 0.1, Y: 0.1}, {X: 0.9, Y: 0.9},
					}},
					Paragraphs: []*visionpb.Paragraph{{Words: []*visionpb.Word{word("lost")}}},
				}},
			}},
		},
	}

	assert.Empty(t, Normalize(resp, 0, 0).Blocks)
}

func TestNormalize_PageDimensionsFallback(t *testing.T) {
	resp := &visionpb.AnnotateImageResponse{
		FullTextAnnotation: &visionpb.TextAnnotation{
			Pages: []*visionpb.Page{{
				Width: 100, Height: 100,
				Blocks: []*visionpb.Block{{
					BoundingBox: &visionpb.BoundingPoly{NormalizedVertices: []*visionpb.NormalizedVertex{
						{X: 0, Y: 0}, {X: 0.5, Y: 0.5},
					}},
					Paragraphs: []*visionpb.Paragraph{{Words: []*visionpb.Word{word("ok")}}},
				}},
			}},
		},
	}

	result := Normalize(resp, 0, 0)
	require.Len(t, result.Blocks, 1)
	assert.Equal(t, 100, result.ImageWidth)
	assert.InDelta(t, 50, result.Blocks[0].Bounds.Width, 0.01)
}

func TestNormalize_Nil(t *testing.T) {
	result := Normalize(nil, 10, 10)
	assert.NotNil(t, result.Blocks)
	assert.Empty(t, result.Blocks)
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusTooManyRequests, httpStatus(codes.ResourceExhausted))
	assert.Equal(t, http.StatusForbidden, httpStatus(codes.PermissionDenied))
	assert.Equal(t, http.StatusUnauthorized, httpStatus(codes.Unauthenticated))
	assert.Equal(t, http.StatusInternalServerError, httpStatus(codes.Internal))
}
