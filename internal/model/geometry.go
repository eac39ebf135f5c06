package model

// Point is a location in PDF user space: points, origin bottom-left.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned rectangle in PDF user space. X and Y name the
// bottom-left corner.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// PlacementKind tags how a signature image is positioned.
type PlacementKind string

const (
	// PlacementBox fits the image inside an explicit rectangle.
	PlacementBox PlacementKind = "box"
	// PlacementPoint centres a size-capped image on a single click point.
	PlacementPoint PlacementKind = "point"
)

// Placement is the persisted signature position. Width and Height are only
// meaningful for PlacementBox.
type Placement struct {
	Kind   PlacementKind `json:"kind"`
	X      float64       `json:"x"`
	Y      float64       `json:"y"`
	Width  float64       `json:"width,omitempty"`
	Height float64       `json:"height,omitempty"`
}

// BoxPlacement places a signature inside r.
func BoxPlacement(r Rect) Placement {
	return Placement{Kind: PlacementBox, X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}
}

// PointPlacement centres a signature on p.
func PointPlacement(p Point) Placement {
	return Placement{Kind: PlacementPoint, X: p.X, Y: p.Y}
}

// Box returns the rectangle of a box placement.
func (p Placement) Box() (Rect, bool) {
	if p.Kind != PlacementBox {
		return Rect{}, false
	}
	return Rect{X: p.X, Y: p.Y, Width: p.Width, Height: p.Height}, true
}

// Point returns the anchor of the placement.
func (p Placement) Point() Point {
	return Point{X: p.X, Y: p.Y}
}

// Valid reports whether the placement is well formed.
func (p Placement) Valid() bool {
	switch p.Kind {
	case PlacementBox:
		return p.Width > 0 && p.Height > 0
	case PlacementPoint:
		return true
	}
	return false
}

// PlacementFromColumns rebuilds a placement from nullable storage columns.
// A stored width and height select the box variant.
func PlacementFromColumns(x, y, w, h *float64) *Placement {
	if x == nil || y == nil {
		return nil
	}
	if w != nil && h != nil && *w > 0 && *h > 0 {
		p := BoxPlacement(Rect{X: *x, Y: *y, Width: *w, Height: *h})
		return &p
	}
	p := PointPlacement(Point{X: *x, Y: *y})
	return &p
}

// Columns flattens a placement into nullable storage columns.
func (p *Placement) Columns() (x, y, w, h *float64) {
	if p == nil {
		return nil, nil, nil, nil
	}
	px, py := p.X, p.Y
	if p.Kind == PlacementBox {
		pw, ph := p.Width, p.Height
		return &px, &py, &pw, &ph
	}
	return &px, &py, nil, nil
}

// PageGeometry describes a PDF page as stored in the file.
type PageGeometry struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Rotate int     `json:"rotate"`
}
