package pdfutil

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/font"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/color"
	pdffont "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/font"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// StampFont is the core font used for titles and dates.
const StampFont = "Helvetica"

func init() {
	// Keep pdfcpu from creating a config directory under $HOME; only the core
	// fonts are needed.
	api.DisableConfigDir()
}

// HelveticaWidth measures text in the core Helvetica metrics.
func HelveticaWidth(text string, size int) float64 {
	return font.TextWidth(text, StampFont, size)
}

// newConfig returns a fresh pdfcpu configuration. pdfcpu records the running
// command on the configuration, so one is built per call.
func newConfig() *pdfmodel.Configuration {
	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed
	conf.WriteObjectStream = false
	conf.WriteXRefStream = false
	return conf
}

// Annotator stamps signer marks onto the first page of a PDF. Marks are drawn
// in the page's own user space, so /Rotate and the page boxes are left as
// they were and coordinates read from Inspect apply unchanged.
type Annotator struct {
	planner Planner
	log     *zap.Logger
}

// NewAnnotator builds an Annotator that formats dates in loc.
func NewAnnotator(loc *time.Location, log *zap.Logger) *Annotator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Annotator{
		planner: Planner{Measure: HelveticaWidth, Location: loc},
		log:     log,
	}
}

// Annotate draws the marks of every slot onto page one. Elements that fail to
// decode or draw are logged and skipped. When nothing could be planned the
// original bytes are returned unchanged.
func (a *Annotator) Annotate(original []byte, marks []Marks) ([]byte, error) {
	var elements []Element
	for _, el := range a.planner.Plan(marks) {
		if el.Err != nil {
			a.logSkip(el, el.Err)
			continue
		}
		elements = append(elements, el)
	}
	if len(elements) == 0 {
		return original, nil
	}

	ctx, err := api.ReadAndValidate(bytes.NewReader(original), newConfig())
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	c, err := openCanvas(ctx.XRefTable, 1)
	if err != nil {
		return nil, fmt.Errorf("open first page: %w", err)
	}
	drawn := 0
	for _, el := range elements {
		if err := c.draw(el); err != nil {
			a.logSkip(el, err)
			continue
		}
		drawn++
	}
	if drawn == 0 {
		return nil, errors.New("stamp page: no element could be drawn")
	}
	if err := c.commit(); err != nil {
		return nil, fmt.Errorf("stamp page: %w", err)
	}
	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (a *Annotator) logSkip(el Element, err error) {
	a.log.Warn("skipping element",
		zap.String("kind", string(el.Kind)),
		zap.Int("order", el.Order),
		zap.String("signer", el.Name),
		zap.Error(err))
}

// canvas collects drawing operators and resources for one page.
type canvas struct {
	xrt   *pdfmodel.XRefTable
	page  types.Dict
	res   types.Dict
	fonts types.Dict
	xobjs types.Dict
	font  string
	ops   bytes.Buffer
}

// openCanvas gives page nr a private copy of its effective resources so new
// entries never leak into dictionaries shared with other pages.
func openCanvas(xrt *pdfmodel.XRefTable, nr int) (*canvas, error) {
	page, _, inherited, err := xrt.PageDict(nr, false)
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, fmt.Errorf("page %d not found", nr)
	}
	res := types.NewDict()
	if inherited != nil && inherited.Resources != nil {
		res = inherited.Resources.Clone().(types.Dict)
	}
	c := &canvas{xrt: xrt, page: page, res: res}
	if c.fonts, err = c.subDict("Font"); err != nil {
		return nil, err
	}
	if c.xobjs, err = c.subDict("XObject"); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *canvas) subDict(key string) (types.Dict, error) {
	d := types.NewDict()
	if obj, ok := c.res.Find(key); ok && obj != nil {
		existing, err := c.xrt.DereferenceDict(obj)
		if err != nil {
			return nil, fmt.Errorf("resources %s: %w", key, err)
		}
		if existing != nil {
			d = existing.Clone().(types.Dict)
		}
	}
	c.res.Update(key, d)
	return d, nil
}

func (c *canvas) draw(el Element) error {
	switch el.Kind {
	case ElementTitle, ElementDate:
		return c.text(el)
	case ElementSignature:
		return c.image(el)
	}
	return fmt.Errorf("unknown element kind %q", el.Kind)
}

// text sets el.Text with its baseline at (el.X, el.Y).
func (c *canvas) text(el Element) error {
	col, err := color.NewSimpleColorForHexCode(el.Color)
	if err != nil {
		return err
	}
	str, err := pdfString(el.Text)
	if err != nil {
		return err
	}
	name, err := c.stampFont()
	if err != nil {
		return err
	}
	fmt.Fprintf(&c.ops, "BT\n/%s %d Tf\n%s %s %s rg\n1 0 0 1 %s %s Tm\n(%s) Tj\nET\n",
		name, el.FontSize,
		num(float64(col.R)), num(float64(col.G)), num(float64(col.B)),
		num(el.X), num(el.Y), str)
	return nil
}

// image paints the signature into the el.Width x el.Height box at (el.X, el.Y).
func (c *canvas) image(el Element) error {
	if len(el.Image) == 0 || el.Width <= 0 || el.Height <= 0 {
		return errors.New("empty signature image")
	}
	ref, _, _, err := pdfmodel.CreateImageResource(c.xrt, bytes.NewReader(el.Image))
	if err != nil {
		return fmt.Errorf("embed signature: %w", err)
	}
	name := freeName(c.xobjs, "AFEImg")
	c.xobjs.Insert(name, *ref)
	fmt.Fprintf(&c.ops, "q\n%s 0 0 %s %s %s cm\n/%s Do\nQ\n",
		num(el.Width), num(el.Height), num(el.X), num(el.Y), name)
	return nil
}

func (c *canvas) stampFont() (string, error) {
	if c.font != "" {
		return c.font, nil
	}
	ref, err := pdffont.EnsureFontDict(c.xrt, StampFont, "", "", false, nil)
	if err != nil {
		return "", fmt.Errorf("font %s: %w", StampFont, err)
	}
	c.font = freeName(c.fonts, "AFEFont")
	c.fonts.Insert(c.font, *ref)
	return c.font, nil
}

// commit brackets the existing content in q/Q so its graphics state cannot
// leak into the marks, then appends the marks.
func (c *canvas) commit() error {
	head, err := c.stream([]byte("q\n"))
	if err != nil {
		return err
	}
	tail, err := c.stream(append([]byte("Q\n"), c.ops.Bytes()...))
	if err != nil {
		return err
	}
	contents := types.Array{*head}
	if obj, ok := c.page.Find("Contents"); ok && obj != nil {
		existing, err := c.contentRefs(obj)
		if err != nil {
			return err
		}
		contents = append(contents, existing...)
	}
	contents = append(contents, *tail)
	c.page.Update("Contents", contents)
	c.page.Update("Resources", c.res)
	return nil
}

func (c *canvas) contentRefs(obj types.Object) (types.Array, error) {
	switch o := obj.(type) {
	case types.IndirectRef:
		target, err := c.xrt.Dereference(o)
		if err != nil {
			return nil, fmt.Errorf("page contents: %w", err)
		}
		if arr, ok := target.(types.Array); ok {
			return arr, nil
		}
		return types.Array{o}, nil
	case types.Array:
		return o, nil
	default:
		ref, err := c.xrt.IndRefForNewObject(o)
		if err != nil {
			return nil, err
		}
		return types.Array{*ref}, nil
	}
}

func (c *canvas) stream(content []byte) (*types.IndirectRef, error) {
	sd, err := c.xrt.NewStreamDictForBuf(content)
	if err != nil {
		return nil, err
	}
	if err := sd.Encode(); err != nil {
		return nil, err
	}
	return c.xrt.IndRefForNewObject(*sd)
}

func freeName(d types.Dict, prefix string) string {
	for i := 1; ; i++ {
		name := prefix + strconv.Itoa(i)
		if _, taken := d.Find(name); !taken {
			return name
		}
	}
}

// winAnsi matches the WinAnsiEncoding of the core font dictionary; runes it
// cannot represent become '?'.
var winAnsi = encoding.ReplaceUnsupported(charmap.Windows1252.NewEncoder())

// pdfString encodes s for a literal string operand.
func pdfString(s string) (string, error) {
	b, err := winAnsi.Bytes([]byte(s))
	if err != nil {
		return "", fmt.Errorf("encode %q: %w", s, err)
	}
	esc, err := types.Escape(string(b))
	if err != nil {
		return "", err
	}
	return *esc, nil
}

// num formats a content stream operand with at most four decimals.
func num(v float64) string {
	v = math.Round(v*1e4) / 1e4
	if v == 0 {
		v = 0 // no "-0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
