package pdfutil

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"strings"
)

// PNGDataURLPrefix is how signature pads encode captured images.
const PNGDataURLPrefix = "data:image/png;base64,"

// DecodeSignature strips the data URL prefix, decodes the base64 payload and
// returns the PNG bytes with their pixel dimensions.
func DecodeSignature(dataURL string) ([]byte, int, int, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(dataURL, PNGDataURLPrefix))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode signature: %w", err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode signature png: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, 0, 0, errors.New("signature image has no pixels")
	}
	return raw, cfg.Width, cfg.Height, nil
}

// ValidSignatureDataURL reports whether s is a decodable PNG data URL.
func ValidSignatureDataURL(s string) bool {
	if !strings.HasPrefix(s, PNGDataURLPrefix) {
		return false
	}
	_, _, _, err := DecodeSignature(s)
	return err == nil
}
