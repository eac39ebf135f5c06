package pdfutil

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/dharsanguruparan/afesign/internal/model"
)

// landscapeRatio is the width/height ratio above which an unrotated page is
// treated as a sideways scan.
const landscapeRatio = 1.2

// PortraitFix is the angle forced onto sideways scans.
const PortraitFix = 270

// ValidRotation reports whether deg is an accepted explicit rotation.
func ValidRotation(deg int) bool {
	return deg == 90 || deg == 180 || deg == 270
}

// NeedsPortraitFix reports whether an unrotated page is wide enough to be a
// sideways scan.
func NeedsPortraitFix(g model.PageGeometry) bool {
	return g.Width > g.Height*landscapeRatio && g.Rotate == 0
}

// Rotate adds deg to the rotation of every page.
func Rotate(data []byte, deg int) ([]byte, error) {
	if !ValidRotation(deg) {
		return nil, fmt.Errorf("unsupported rotation %d", deg)
	}
	return rotatePages(data, deg, nil)
}

// AutoRotate sets sideways-scanned pages to PortraitFix and leaves the rest
// alone. The input is returned as is when no page qualifies.
func AutoRotate(data []byte) ([]byte, error) {
	info, err := Inspect(data)
	if err != nil {
		return nil, err
	}
	var pages []string
	for i, g := range info.Pages {
		if NeedsPortraitFix(g) {
			pages = append(pages, strconv.Itoa(i+1))
		}
	}
	if len(pages) == 0 {
		return data, nil
	}
	// Qualifying pages have rotation 0, so adding the fix sets it outright.
	return rotatePages(data, PortraitFix, pages)
}

// Orient applies an explicit rotation when one of 90, 180 or 270 is given
// and the sideways-scan fix otherwise. On failure it returns the input bytes
// together with the error so callers can log and keep serving.
func Orient(data []byte, requested int) ([]byte, error) {
	var (
		out []byte
		err error
	)
	if ValidRotation(requested) {
		out, err = Rotate(data, requested)
	} else {
		out, err = AutoRotate(data)
	}
	if err != nil {
		return data, err
	}
	return out, nil
}

func rotatePages(data []byte, deg int, pages []string) ([]byte, error) {
	var buf bytes.Buffer
	if err := api.Rotate(bytes.NewReader(data), &buf, deg, pages, newConfig()); err != nil {
		return nil, fmt.Errorf("rotate pages: %w", err)
	}
	return buf.Bytes(), nil
}
