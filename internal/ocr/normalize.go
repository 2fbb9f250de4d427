package ocr

import (
	"strings"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/protobuf/encoding/protojson"

	"transhot/pkg/models"
)

// Normalize converts one image annotation into text blocks. width and
// height are the image's natural dimensions, used to scale normalized
// vertices; when zero the page dimensions reported by the service are used.
func Normalize(resp *visionpb.AnnotateImageResponse, width, height int) *models.OCRResult {
	result := &models.OCRResult{
		Blocks:      []models.TextBlock{},
		ImageWidth:  width,
		ImageHeight: height,
	}
	if resp == nil {
		return result
	}

	if raw, err := protojson.Marshal(resp); err == nil {
		result.Raw = raw
	}

	for _, page := range resp.GetFullTextAnnotation().GetPages() {
		w, h := width, height
		if w == 0 || h == 0 {
			w, h = int(page.GetWidth()), int(page.GetHeight())
		}
		if result.ImageWidth == 0 {
			result.ImageWidth, result.ImageHeight = w, h
		}

		for _, block := range page.GetBlocks() {
			text := blockText(block)
			if text == "" {
				continue
			}
			poly := blockPolygon(block.GetBoundingBox(), w, h)
			bounds := poly.Bounds()
			if bounds.Degenerate() {
				continue
			}
			result.Blocks = append(result.Blocks, models.TextBlock{
				Text:         text,
				BoundingPoly: poly,
				Bounds:       bounds,
			})
		}
	}

	return result
}

func blockText(block *visionpb.Block) string {
	paragraphs := make([]string, 0, len(block.GetParagraphs()))
	for _, paragraph := range block.GetParagraphs() {
		words := make([]string, 0, len(paragraph.GetWords()))
		for _, word := range paragraph.GetWords() {
			var sb strings.Builder
			for _, symbol := range word.GetSymbols() {
				sb.WriteString(symbol.GetText())
			}
			if sb.Len() > 0 {
				words = append(words, sb.String())
			}
		}
		if len(words) > 0 {
			paragraphs = append(paragraphs, strings.Join(words, " "))
		}
	}
	return strings.TrimSpace(strings.Join(paragraphs, "\n"))
}

// blockPolygon prefers absolute pixel vertices and falls back to
// normalized vertices scaled by the image dimensions.
func blockPolygon(box *visionpb.BoundingPoly, width, height int) models.Polygon {
	if vertices := box.GetVertices(); len(vertices) > 0 {
		poly := make(models.Polygon, len(vertices))
		for i, v := range vertices {
			poly[i] = models.Point{X: float64(v.GetX()), Y: float64(v.GetY())}
		}
		return poly
	}

	normalized := box.GetNormalizedVertices()
	if len(normalized) == 0 || width == 0 || height == 0 {
		return nil
	}
	poly := make(models.Polygon, len(normalized))
	for i, v := range normalized {
		poly[i] = models.Point{
			X: float64(v.GetX()) * float64(width),
			Y: float64(v.GetY()) * float64(height),
		}
	}
	return poly
}
