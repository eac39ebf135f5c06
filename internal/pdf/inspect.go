package pdfutil

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	pdf "github.com/ledongthuc/pdf"

	"github.com/dharsanguruparan/afesign/internal/model"
)

// Letter is assumed when a page carries no MediaBox anywhere in its tree.
var Letter = model.PageGeometry{Width: 612, Height: 792}

// Info summarizes the page tree of a PDF.
type Info struct {
	PageCount int                  `json:"pageCount"`
	Pages     []model.PageGeometry `json:"pages"`
}

// First returns the geometry of page one.
func (i Info) First() model.PageGeometry {
	if len(i.Pages) == 0 {
		return Letter
	}
	return i.Pages[0]
}

// Inspect reads PDF bytes with ledongthuc/pdf and returns the size and
// rotation of every page. MediaBox and Rotate are inherited through the
// page tree.
func Inspect(data []byte) (info Info, err error) {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return Info{}, errors.New("not a PDF file")
	}
	defer func() {
		// The reader panics on some malformed cross reference tables.
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Info{}, fmt.Errorf("new pdf reader: %w", err)
	}
	total := doc.NumPage()
	for n := 1; n <= total; n++ {
		p := doc.Page(n)
		if p.V.IsNull() {
			continue
		}
		info.Pages = append(info.Pages, geometry(p.V))
	}
	info.PageCount = len(info.Pages)
	if info.PageCount == 0 {
		return Info{}, errors.New("pdf has no pages")
	}
	return info, nil
}

func geometry(page pdf.Value) model.PageGeometry {
	g := Letter
	if box := inherited(page, "MediaBox"); box.Len() == 4 {
		llx, lly := box.Index(0).Float64(), box.Index(1).Float64()
		urx, ury := box.Index(2).Float64(), box.Index(3).Float64()
		g.Width = math.Abs(urx - llx)
		g.Height = math.Abs(ury - lly)
	}
	if rot := inherited(page, "Rotate"); !rot.IsNull() {
		g.Rotate = normalizeAngle(int(rot.Int64()))
	}
	return g
}

func inherited(v pdf.Value, key string) pdf.Value {
	for depth := 0; depth < 32 && !v.IsNull(); depth++ {
		if x := v.Key(key); !x.IsNull() {
			return x
		}
		v = v.Key("Parent")
	}
	return pdf.Value{}
}

func normalizeAngle(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return deg
}
