// Package coords maps between rendered-canvas pixels (origin top-left, y down)
// and PDF user space (origin bottom-left, y up). Scale is computed per axis
// since a rendered page need not keep the native aspect ratio.
package coords

import (
	"errors"
	"fmt"
	"math"

	"github.com/dharsanguruparan/afesign/internal/model"
)

// Boxes smaller than this on the canvas are treated as accidental clicks.
const (
	MinBoxWidth  = 20.0
	MinBoxHeight = 10.0
)

// ErrBoxTooSmall is returned for drags below the minimum canvas size.
var ErrBoxTooSmall = errors.New("placement box too small")

// Size is a width/height pair. For a page it is in points, for a canvas in
// CSS pixels.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ScreenPoint is a click on the rendered canvas. It never leaves the UI
// boundary; only its PDF-space conversion is persisted.
type ScreenPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ScreenRect is a drag rectangle on the canvas, anchored at its top-left
// corner.
type ScreenRect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Transformer converts between one page's canvas and its user space.
type Transformer struct {
	page   Size
	scaleX float64
	scaleY float64
}

// New builds a Transformer for a page of native size page rendered at canvas.
func New(page, canvas Size) (Transformer, error) {
	if page.Width <= 0 || page.Height <= 0 {
		return Transformer{}, fmt.Errorf("invalid page size %gx%g", page.Width, page.Height)
	}
	if canvas.Width <= 0 || canvas.Height <= 0 {
		return Transformer{}, fmt.Errorf("invalid canvas size %gx%g", canvas.Width, canvas.Height)
	}
	return Transformer{
		page:   page,
		scaleX: page.Width / canvas.Width,
		scaleY: page.Height / canvas.Height,
	}, nil
}

// ScaleX is points per canvas pixel horizontally.
func (t Transformer) ScaleX() float64 { return t.scaleX }

// ScaleY is points per canvas pixel vertically.
func (t Transformer) ScaleY() float64 { return t.scaleY }

// PointExact converts a click without rounding.
func (t Transformer) PointExact(p ScreenPoint) model.Point {
	return model.Point{
		X: p.X * t.scaleX,
		Y: t.page.Height - p.Y*t.scaleY,
	}
}

// Point converts a click and rounds to whole points for storage.
func (t Transformer) Point(p ScreenPoint) model.Point {
	exact := t.PointExact(p)
	return model.Point{X: math.Round(exact.X), Y: math.Round(exact.Y)}
}

// Box converts a drag rectangle. The PDF rectangle is anchored at the bottom
// edge of the drag and keeps sub-point precision.
func (t Transformer) Box(r ScreenRect) (model.Rect, error) {
	if r.Width < MinBoxWidth || r.Height < MinBoxHeight {
		return model.Rect{}, fmt.Errorf("%w: %gx%g px (minimum %gx%g)", ErrBoxTooSmall, r.Width, r.Height, MinBoxWidth, MinBoxHeight)
	}
	return model.Rect{
		X:      r.X * t.scaleX,
		Y:      t.page.Height - (r.Y+r.Height)*t.scaleY,
		Width:  r.Width * t.scaleX,
		Height: r.Height * t.scaleY,
	}, nil
}

// ScreenPoint maps a user-space point back onto the canvas.
func (t Transformer) ScreenPoint(p model.Point) ScreenPoint {
	return ScreenPoint{
		X: p.X / t.scaleX,
		Y: (t.page.Height - p.Y) / t.scaleY,
	}
}

// ScreenRect maps a user-space rectangle back onto the canvas.
func (t Transformer) ScreenRect(r model.Rect) ScreenRect {
	h := r.Height / t.scaleY
	return ScreenRect{
		X:      r.X / t.scaleX,
		Y:      (t.page.Height-r.Y)/t.scaleY - h,
		Width:  r.Width / t.scaleX,
		Height: h,
	}
}
