// Package signing implements the HMAC helper behind expiring download links
// for final PDFs.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Signer generates and validates HMAC based signatures.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner creates a Signer.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret, now: time.Now}
}

// Sign returns the hex signature for an AFE id and expiry.
func (s *Signer) Sign(afeID string, expiresUnix int64) string {
	mac := hmac.New(sha256.New, s.secret)
	payload := fmt.Sprintf("%s:%d", afeID, expiresUnix)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Validate compares the provided signature with the expected one and rejects
// expired links.
func (s *Signer) Validate(afeID, expires, signature string) bool {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return false
	}
	if s.now().Unix() > exp {
		return false
	}
	expected := s.Sign(afeID, exp)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// URL builds "<base>/download?afe=..&expires=..&signature=..".
func (s *Signer) URL(base, afeID string, ttl time.Duration) string {
	exp := s.now().Add(ttl).Unix()
	q := url.Values{}
	q.Set("afe", afeID)
	q.Set("expires", strconv.FormatInt(exp, 10))
	q.Set("signature", s.Sign(afeID, exp))
	return base + "/download?" + q.Encode()
}
