package models

import "math"

// ElementKind identifies the media type of an on-page visual element.
type ElementKind string

const (
	ElementImage ElementKind = "img"
	ElementVideo ElementKind = "video"
)

// Element is a visual element on a page. The pointer identity is the element
// identity: snapshot memoization and the busy guard are keyed by *Element.
type Element struct {
	Kind    ElementKind // img or video
	Src     string      // absolute http(s), data: or file: URL, or a local path
	PageURL string      // page the element was found on (optional)
	Alt     string
}

// Snapshot is the content-addressed capture of an element's bytes.
type Snapshot struct {
	Hash     string // hex SHA-256 of Payload
	Payload  []byte
	MimeType string
	Width    int // natural dimensions, 0 when the format could not be decoded
	Height   int
}

// Point is a 2D polygon vertex in image pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Polygon is a closed list of vertices.
type Polygon []Point

// Rect is an axis-aligned bounding rectangle.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Bounds returns the min/max rectangle over the polygon's vertices.
func (p Polygon) Bounds() Rect {
	if len(p) == 0 {
		return Rect{}
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, v := range p {
		minX = math.Min(minX, v.X)
		minY = math.Min(minY, v.Y)
		maxX = math.Max(maxX, v.X)
		maxY = math.Max(maxY, v.Y)
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// Degenerate reports whether the rectangle has no area.
func (r Rect) Degenerate() bool {
	return r.Width <= 0 || r.Height <= 0
}
