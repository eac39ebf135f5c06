package pdfutil

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/afesign/internal/model"
	"github.com/dharsanguruparan/afesign/internal/pdf/pdftest"
)

func TestInspect(t *testing.T) {
	data := pdftest.PDF(pdftest.Letter, pdftest.Page{Width: 792, Height: 612, Rotate: 90})

	info, err := Inspect(data)
	require.NoError(t, err)
	assert.Equal(t, 2, info.PageCount)
	assert.Equal(t, model.PageGeometry{Width: 612, Height: 792}, info.First())
	assert.Equal(t, model.PageGeometry{Width: 792, Height: 612, Rotate: 90}, info.Pages[1])
}

func TestInspectRejectsNonPDF(t *testing.T) {
	_, err := Inspect([]byte("hello"))
	assert.Error(t, err)
	_, err = Inspect([]byte("%PDF-1.4\ngarbage"))
	assert.Error(t, err)
}

func TestNeedsPortraitFix(t *testing.T) {
	cases := []struct {
		g    model.PageGeometry
		want bool
	}{
		{model.PageGeometry{Width: 792, Height: 612}, true},
		{model.PageGeometry{Width: 612, Height: 792}, false},
		{model.PageGeometry{Width: 792, Height: 612, Rotate: 90}, false},
		{model.PageGeometry{Width: 120, Height: 100}, false},
		{model.PageGeometry{Width: 120.1, Height: 100}, true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NeedsPortraitFix(tc.g), "%+v", tc.g)
	}
}

func TestAutoRotateLandscapeOnly(t *testing.T) {
	data := pdftest.PDF(pdftest.LetterLandscape, pdftest.Letter)

	out, err := Orient(data, 0)
	require.NoError(t, err)
	info, err := Inspect(out)
	require.NoError(t, err)
	assert.Equal(t, 270, info.Pages[0].Rotate)
	assert.Equal(t, 0, info.Pages[1].Rotate)
	assert.Equal(t, 792.0, info.Pages[0].Width)
}

func TestAutoRotateLeavesPortraitUntouched(t *testing.T) {
	data := pdftest.PDF(pdftest.Letter)

	out, err := Orient(data, 0)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestExplicitRotationAddsToEveryPage(t *testing.T) {
	data := pdftest.PDF(pdftest.Letter, pdftest.Page{Width: 612, Height: 792, Rotate: 180})

	out, err := Orient(data, 270)
	require.NoError(t, err)
	info, err := Inspect(out)
	require.NoError(t, err)
	assert.Equal(t, 270, info.Pages[0].Rotate)
	assert.Equal(t, 90, info.Pages[1].Rotate)
}

func TestOrientReturnsInputOnFailure(t *testing.T) {
	junk := []byte("not a pdf")
	out, err := Orient(junk, 90)
	assert.Error(t, err)
	assert.Equal(t, junk, out)
}

func TestAnnotateStampsFirstPage(t *testing.T) {
	original := pdftest.PDF(pdftest.Letter, pdftest.Letter)
	at := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	box := model.BoxPlacement(model.Rect{X: 72, Y: 100, Width: 150, Height: 40})
	point := model.PointPlacement(model.Point{X: 400, Y: 120})

	a := NewAnnotator(time.UTC, zap.NewNop())
	out, err := a.Annotate(original, []Marks{
		{Order: 1, Name: "Alice", Title: "Engineer", TitleBox: &model.Rect{X: 72, Y: 150}, Signature: &box, SignatureImage: pdftest.PNGDataURL(200, 60), DateBox: &model.Rect{X: 230, Y: 100}, SignedAt: &at},
		{Order: 2, Name: "Bob", Signature: &point, SignatureImage: pdftest.PNGDataURL(120, 40), SignedAt: &at},
	})
	require.NoError(t, err)
	assert.NotEqual(t, original, out)

	info, err := Inspect(out)
	require.NoError(t, err)
	assert.Equal(t, 2, info.PageCount)
}

// pageContent returns the decoded content of page one together with its
// resource dictionary.
func pageContent(t *testing.T, data []byte) (string, map[string]bool) {
	t.Helper()
	ctx, err := api.ReadAndValidate(bytes.NewReader(data), newConfig())
	require.NoError(t, err)
	page, _, _, err := ctx.PageDict(1, false)
	require.NoError(t, err)
	content, err := ctx.PageContent(page, 1)
	require.NoError(t, err)

	names := map[string]bool{}
	obj, ok := page.Find("Resources")
	require.True(t, ok)
	res, err := ctx.DereferenceDict(obj)
	require.NoError(t, err)
	for _, key := range []string{"Font", "XObject"} {
		sub, err := ctx.DereferenceDict(res[key])
		require.NoError(t, err)
		for name := range sub {
			names[name] = true
		}
	}
	return string(content), names
}

func TestAnnotateDrawsAtPlannedCoordinates(t *testing.T) {
	at := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	sig := model.BoxPlacement(model.Rect{X: 300, Y: 400, Width: 100, Height: 50})
	marks := []Marks{{
		Order:          1,
		Name:           "Alice",
		Title:          "Engineer",
		TitleBox:       &model.Rect{X: 100, Y: 200, Width: 150, Height: 20},
		Signature:      &sig,
		SignatureImage: pdftest.PNGDataURL(40, 10),
		DateBox:        &model.Rect{X: 100, Y: 600, Width: 80, Height: 20},
		SignedAt:       &at,
	}}

	out, err := NewAnnotator(time.UTC, zap.NewNop()).Annotate(pdftest.PDF(pdftest.Letter), marks)
	require.NoError(t, err)
	content, names := pageContent(t, out)

	// Baselines sit at box.Y + (h - size)/2 with no extra offset.
	assert.Contains(t, content, "/AFEFont1 11 Tf\n0 0 0 rg\n1 0 0 1 102 204.5 Tm\n(Engineer) Tj")
	assert.Contains(t, content, "1 0 0 1 102 604.5 Tm\n(1/2/2024) Tj")
	assert.Contains(t, content, "100 0 0 25 300 412.5 cm\n/AFEImg1 Do")
	assert.True(t, names["AFEFont1"])
	assert.True(t, names["AFEImg1"])

	plan := Planner{Measure: HelveticaWidth, Location: time.UTC}.Plan(marks)
	require.Len(t, plan, 3)
	for _, el := range plan {
		switch el.Kind {
		case ElementSignature:
			assert.Contains(t, content, fmt.Sprintf("%s 0 0 %s %s %s cm", num(el.Width), num(el.Height), num(el.X), num(el.Y)))
		default:
			assert.Contains(t, content, fmt.Sprintf("1 0 0 1 %s %s Tm\n(%s) Tj", num(el.X), num(el.Y), el.Text))
		}
	}

	// Existing content is kept and isolated from the marks.
	assert.True(t, bytes.HasPrefix([]byte(content), []byte("q")))
	assert.Contains(t, content, "0 0 m 10 10 l S")
}

func TestAnnotateKeepsRotatedPageGeometry(t *testing.T) {
	original := pdftest.PDF(pdftest.Page{Width: 612, Height: 792, Rotate: 90})
	at := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

	out, err := NewAnnotator(time.UTC, zap.NewNop()).Annotate(original, []Marks{
		{Order: 1, Title: "Engineer", TitleBox: &model.Rect{X: 100, Y: 200, Width: 150, Height: 20}, SignedAt: &at, DateBox: &model.Rect{X: 100, Y: 600}},
	})
	require.NoError(t, err)

	info, err := Inspect(out)
	require.NoError(t, err)
	assert.Equal(t, model.PageGeometry{Width: 612, Height: 792, Rotate: 90}, info.First())

	content, _ := pageContent(t, out)
	assert.Contains(t, content, "1 0 0 1 102 204.5 Tm", "drawn in unrotated user space")

	oriented, err := Orient(out, 0)
	require.NoError(t, err)
	assert.Equal(t, out, oriented, "a stamped rotated page must not look like a sideways scan")
}

func TestAnnotateEscapesText(t *testing.T) {
	out, err := NewAnnotator(time.UTC, nil).Annotate(pdftest.PDF(), []Marks{
		{Order: 1, Title: "O'Brien (Ops) café", TitleBox: &model.Rect{X: 10, Y: 10, Width: 300, Height: 20}},
	})
	require.NoError(t, err)
	content, _ := pageContent(t, out)
	assert.Contains(t, content, "(O'Brien \\(Ops\\) caf\xe9) Tj")
}

func TestNum(t *testing.T) {
	assert.Equal(t, "204.5", num(204.5))
	assert.Equal(t, "0.3", num(0.1+0.2))
	assert.Equal(t, "0", num(-0.00001))
	assert.Equal(t, "87.4286", num(612.0/700*100))
}

func TestAnnotateSkipsBrokenSignature(t *testing.T) {
	original := pdftest.PDF(pdftest.Letter)
	at := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	box := model.BoxPlacement(model.Rect{X: 72, Y: 100, Width: 150, Height: 40})

	a := NewAnnotator(time.UTC, zap.NewNop())
	out, err := a.Annotate(original, []Marks{
		{Order: 1, Signature: &box, SignatureImage: "data:image/png;base64,AAAA", DateBox: &model.Rect{X: 230, Y: 100}, SignedAt: &at},
	})
	require.NoError(t, err)
	assert.NotEqual(t, original, out, "date must still be stamped")
}

func TestAnnotateWithoutMarksReturnsOriginal(t *testing.T) {
	original := pdftest.PDF(pdftest.Letter)
	out, err := NewAnnotator(nil, nil).Annotate(original, nil)
	require.NoError(t, err)
	assert.Equal(t, original, out)
}

func TestDecodeSignature(t *testing.T) {
	img, w, h, err := DecodeSignature(pdftest.PNGDataURL(30, 12))
	require.NoError(t, err)
	assert.Equal(t, 30, w)
	assert.Equal(t, 12, h)
	assert.Equal(t, pdftest.PNG(30, 12), img)

	assert.True(t, ValidSignatureDataURL(pdftest.PNGDataURL(2, 2)))
	assert.False(t, ValidSignatureDataURL("data:image/jpeg;base64,AAAA"))
	assert.False(t, ValidSignatureDataURL("data:image/png;base64,%%%"))
}
