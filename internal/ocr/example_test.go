package ocr_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"

	"transhot/internal/auth"
	"transhot/internal/ocr"
	"transhot/internal/snapshot"
	"transhot/pkg/models"
)

// Example demonstrates recognizing text in a local image with an API key.
func Example() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	data, err := os.ReadFile("sample_banner.png")
	if err != nil {
		log.Fatalf("Failed to read image: %v", err)
	}

	width, height := snapshot.Dimensions(data)
	snap := &models.Snapshot{
		Hash:     snapshot.Digest(data),
		Payload:  data,
		MimeType: "image/png",
		Width:    width,
		Height:   height,
	}

	recognizer := ocr.NewRESTRecognizer("", nil)
	result, err := recognizer.Recognize(ctx, snap, auth.Token{APIKey: os.Getenv("GOOGLE_VISION_API_KEY")})
	if err != nil {
		log.Fatalf("Failed to recognize text: %v", err)
	}

	for _, block := range result.Blocks {
		fmt.Printf("%q at %+v\n", block.Text, block.Bounds)
	}
}

// ExampleNormalize shows how Vision blocks become text blocks.
func ExampleNormalize() {
	resp := &visionpb.AnnotateImageResponse{
		FullTextAnnotation: &visionpb.TextAnnotation{
			Pages: []*visionpb.Page{{
				Blocks: []*visionpb.Block{{
					BoundingBox: &visionpb.BoundingPoly{Vertices: []*visionpb.Vertex{
						{X: 0, Y: 0}, {X: 40, Y: 0}, {X: 40, Y: 10}, {X: 0, Y: 10},
					}},
					Paragraphs: []*visionpb.Paragraph{{
						Words: []*visionpb.Word{
							{Symbols: []*visionpb.Symbol{{Text: "New"}}},
							{Symbols: []*visionpb.Symbol{{Text: "arrivals"}}},
						},
					}},
				}},
			}},
		},
	}

	result := ocr.Normalize(resp, 40, 10)
	for _, block := range result.Blocks {
		fmt.Printf("%s %.0fx%.0f\n", block.Text, block.Bounds.Width, block.Bounds.Height)
	}
	// Output: New arrivals 40x10
}
