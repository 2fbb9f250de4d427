package models

import "encoding/json"

// TextBlock is one recognized region of text.
type TextBlock struct {
	Text         string  `json:"text"`
	BoundingPoly Polygon `json:"boundingPoly"`
	Bounds       Rect    `json:"bounds"`
}

// OCRResult is the normalized recognition output for one image hash.
type OCRResult struct {
	Blocks      []TextBlock     `json:"blocks"`
	ImageWidth  int             `json:"imageWidth,omitempty"`
	ImageHeight int             `json:"imageHeight,omitempty"`
	Raw         json.RawMessage `json:"raw,omitempty"` // service response for this image
}

// Texts returns the block texts in order.
func (r *OCRResult) Texts() []string {
	if r == nil {
		return nil
	}
	texts := make([]string, len(r.Blocks))
	for i, b := range r.Blocks {
		texts[i] = b.Text
	}
	return texts
}

// TranslationEntry pairs a recognized block with its translation.
type TranslationEntry struct {
	OriginalText   string  `json:"originalText"`
	TranslatedText string  `json:"translatedText"`
	BoundingPoly   Polygon `json:"boundingPoly,omitempty"`
}

// PageVisit records the last time an image was translated on a site.
type PageVisit struct {
	Origin    string `json:"origin"`
	UpdatedAt int64  `json:"updatedAt"` // unix milliseconds
}

// ImageMeta describes where a hashed image was seen.
type ImageMeta struct {
	ImageURL string      `json:"imageUrl,omitempty"`
	Pages    []PageVisit `json:"pages,omitempty"`
}

// Visit returns the visit entry for origin, if any.
func (m ImageMeta) Visit(origin string) (PageVisit, bool) {
	for _, p := range m.Pages {
		if p.Origin == origin {
			return p, true
		}
	}
	return PageVisit{}, false
}

// LatestVisit returns the most recent visit across all origins.
func (m ImageMeta) LatestVisit() PageVisit {
	var latest PageVisit
	for _, p := range m.Pages {
		if p.UpdatedAt > latest.UpdatedAt {
			latest = p
		}
	}
	return latest
}
