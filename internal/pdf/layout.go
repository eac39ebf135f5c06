package pdfutil

import (
	"math"
	"time"

	"github.com/dharsanguruparan/afesign/internal/model"
)

// Layout constants. Existing signed documents were rendered with these exact
// values, so they must not drift.
const (
	DefaultTitleWidth  = 150.0
	DefaultTitleHeight = 20.0
	DefaultDateWidth   = 80.0
	DefaultDateHeight  = 20.0

	MaxFontSize = 11
	MinFontSize = 8

	// Text sits 2pt inside the left edge and must fit within width-4.
	TextPadding = 2.0
	fitSlack    = 4.0

	LegacySignatureWidth  = 120.0
	LegacySignatureHeight = 40.0
	LegacyDateFontSize    = 10
	legacyDateGap         = 10.0
	legacyDateDrop        = 5.0

	// DateLayout renders M/d/yyyy.
	DateLayout = "1/2/2006"

	ColorBlack      = "#000000"
	ColorLegacyDate = "#000080"
)

// ElementKind names what an element draws.
type ElementKind string

const (
	ElementTitle     ElementKind = "title"
	ElementSignature ElementKind = "signature"
	ElementDate      ElementKind = "date"
)

// Measurer returns the width in points of text set at size.
type Measurer func(text string, size int) float64

// Marks is what one signed slot contributes to the first page.
type Marks struct {
	Order          int
	Name           string
	Title          string
	TitleBox       *model.Rect
	Signature      *model.Placement
	SignatureImage string
	DateBox        *model.Rect
	SignedAt       *time.Time
}

// Element is one positioned drawing instruction. X and Y are the lower-left
// origin in points; for text Y is the baseline.
type Element struct {
	Kind     ElementKind
	Order    int
	Name     string
	Text     string
	FontSize int
	Color    string
	Image    []byte
	// PixelWidth is the decoded width of Image.
	PixelWidth int
	X          float64
	Y          float64
	Width      float64
	Height     float64
	// Err is set when the element could not be prepared. Renderers skip it.
	Err error
}

// MarksFor collects the SIGNED slots in signing order.
func MarksFor(signers []model.Signer) []Marks {
	slots := model.CloneSigners(signers)
	model.SortSigners(slots)
	var out []Marks
	for _, s := range slots {
		if s.Status != model.SignerSigned {
			continue
		}
		m := Marks{
			Order:          s.SigningOrder,
			TitleBox:       s.TitleBox,
			Signature:      s.Signature,
			SignatureImage: s.SignatureImage,
			DateBox:        s.DateBox,
			SignedAt:       s.SignedAt,
		}
		if s.User != nil {
			m.Name = s.User.Name
			m.Title = s.User.Title
		}
		out = append(out, m)
	}
	return out
}

// Planner turns marks into elements. It has no side effects.
type Planner struct {
	Measure  Measurer
	Location *time.Location
}

// Plan lays out every slot in the order given: title, then signature, then
// date within a slot. Absent boxes or data skip the element silently; data
// that cannot be decoded yields an element carrying Err.
func (p Planner) Plan(marks []Marks) []Element {
	var out []Element
	for _, m := range marks {
		if el, ok := p.title(m); ok {
			out = append(out, el)
		}
		if el, ok := p.signature(m); ok {
			out = append(out, el)
		}
		if el, ok := p.date(m); ok {
			out = append(out, el)
		}
	}
	return out
}

// FitFontSize shrinks from MaxFontSize in 1pt steps until text fits within
// boxWidth-4 or the MinFontSize floor is reached.
func FitFontSize(text string, boxWidth float64, measure Measurer) int {
	size := MaxFontSize
	for measure(text, size) > boxWidth-fitSlack && size > MinFontSize {
		size--
	}
	return size
}

func (p Planner) title(m Marks) (Element, bool) {
	if m.TitleBox == nil || m.Title == "" {
		return Element{}, false
	}
	return p.boxedText(m, ElementTitle, m.Title, *m.TitleBox, DefaultTitleWidth, DefaultTitleHeight), true
}

func (p Planner) date(m Marks) (Element, bool) {
	if m.SignedAt == nil {
		return Element{}, false
	}
	text := m.SignedAt.In(p.location()).Format(DateLayout)
	if m.DateBox != nil {
		return p.boxedText(m, ElementDate, text, *m.DateBox, DefaultDateWidth, DefaultDateHeight), true
	}
	if m.Signature == nil {
		return Element{}, false
	}
	sigW, sigH := LegacySignatureWidth, LegacySignatureHeight
	if box, ok := m.Signature.Box(); ok {
		sigW, sigH = box.Width, box.Height
	}
	return Element{
		Kind:     ElementDate,
		Order:    m.Order,
		Name:     m.Name,
		Text:     text,
		FontSize: LegacyDateFontSize,
		Color:    ColorLegacyDate,
		X:        m.Signature.X + sigW + legacyDateGap,
		Y:        m.Signature.Y + sigH/2 - legacyDateDrop,
	}, true
}

func (p Planner) boxedText(m Marks, kind ElementKind, text string, box model.Rect, defW, defH float64) Element {
	w, h := box.Width, box.Height
	if w <= 0 {
		w = defW
	}
	if h <= 0 {
		h = defH
	}
	size := FitFontSize(text, w, p.Measure)
	return Element{
		Kind:     kind,
		Order:    m.Order,
		Name:     m.Name,
		Text:     text,
		FontSize: size,
		Color:    ColorBlack,
		X:        box.X + TextPadding,
		Y:        box.Y + (h-float64(size))/2,
		Width:    p.Measure(text, size),
		Height:   float64(size),
	}
}

func (p Planner) signature(m Marks) (Element, bool) {
	if m.Signature == nil || m.SignatureImage == "" {
		return Element{}, false
	}
	el := Element{Kind: ElementSignature, Order: m.Order, Name: m.Name}
	img, iw, ih, err := DecodeSignature(m.SignatureImage)
	if err != nil {
		el.Err = err
		return el, true
	}
	el.Image = img
	el.PixelWidth = iw
	w, h := float64(iw), float64(ih)
	switch m.Signature.Kind {
	case model.PlacementBox:
		scale := math.Min(m.Signature.Width/w, m.Signature.Height/h)
		el.Width, el.Height = w*scale, h*scale
		el.X = m.Signature.X
		el.Y = m.Signature.Y + (m.Signature.Height-el.Height)/2
	default:
		scale := math.Min(LegacySignatureWidth/w, LegacySignatureHeight/h)
		el.Width, el.Height = w*scale, h*scale
		el.X = m.Signature.X - el.Width/2
		el.Y = m.Signature.Y - el.Height/2
	}
	return el, true
}

func (p Planner) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}
