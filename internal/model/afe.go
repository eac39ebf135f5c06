// Package model contains the struct definitions shared across packages.
package model

import (
	"sort"
	"time"
)

// AFEStatus describes the lifecycle of an approval document.
type AFEStatus string

const (
	StatusDraft           AFEStatus = "DRAFT"
	StatusPending         AFEStatus = "PENDING"
	StatusPartiallySigned AFEStatus = "PARTIALLY_SIGNED"
	StatusFullySigned     AFEStatus = "FULLY_SIGNED"
	StatusRejected        AFEStatus = "REJECTED"
	StatusCancelled       AFEStatus = "CANCELLED"
)

// Terminal reports whether no further signer transitions are permitted.
func (s AFEStatus) Terminal() bool {
	switch s {
	case StatusFullySigned, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s AFEStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusPartiallySigned, StatusFullySigned, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// Signable reports whether an active signer may sign or reject.
func (s AFEStatus) Signable() bool {
	return s == StatusPending || s == StatusPartiallySigned
}

// SignerStatus is the state of one slot in the signing chain.
type SignerStatus string

const (
	SignerPending  SignerStatus = "PENDING"
	SignerActive   SignerStatus = "ACTIVE"
	SignerSigned   SignerStatus = "SIGNED"
	SignerRejected SignerStatus = "REJECTED"
	SignerSkipped  SignerStatus = "SKIPPED"
)

// Open reports whether the slot still awaits a decision.
func (s SignerStatus) Open() bool {
	return s == SignerPending || s == SignerActive
}

// AFE is the document routed through the approval chain.
type AFE struct {
	ID             string    `json:"id"`
	Name           string    `json:"afeName"`
	Number         *string   `json:"afeNumber,omitempty"`
	Status         AFEStatus `json:"status"`
	OriginalPDFKey string    `json:"originalPdfKey"`
	// FinalPDFKey is written once, after the chain reaches FULLY_SIGNED.
	FinalPDFKey *string   `json:"finalPdfKey,omitempty"`
	CreatedByID string    `json:"createdById"`
	CreatedBy   *User     `json:"createdBy,omitempty"`
	Signers     []Signer  `json:"signers"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Signer is one slot of the ordered signing chain.
type Signer struct {
	ID           string       `json:"id"`
	AFEID        string       `json:"afeId"`
	UserID       string       `json:"userId"`
	User         *User        `json:"user,omitempty"`
	SigningOrder int          `json:"signingOrder"`
	Status       SignerStatus `json:"status"`
	Signature    *Placement   `json:"signature,omitempty"`
	TitleBox     *Rect        `json:"titleBox,omitempty"`
	DateBox      *Rect        `json:"dateBox,omitempty"`
	// SignatureImage is a PNG data URL captured at signing time.
	SignatureImage string     `json:"-"`
	SignedAt       *time.Time `json:"signedAt,omitempty"`
	IPAddress      string     `json:"ipAddress,omitempty"`
	UserAgent      string     `json:"userAgent,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// SortSigners orders slots by signing order in place.
func SortSigners(signers []Signer) {
	sort.SliceStable(signers, func(i, j int) bool {
		return signers[i].SigningOrder < signers[j].SigningOrder
	})
}

// CloneSigners returns a deep enough copy that callers may mutate statuses
// and placements without touching the source slice.
func CloneSigners(signers []Signer) []Signer {
	out := make([]Signer, len(signers))
	for i, s := range signers {
		out[i] = s.Clone()
	}
	return out
}

// Clone copies the slot including its pointer fields.
func (s Signer) Clone() Signer {
	if s.Signature != nil {
		p := *s.Signature
		s.Signature = &p
	}
	if s.TitleBox != nil {
		r := *s.TitleBox
		s.TitleBox = &r
	}
	if s.DateBox != nil {
		r := *s.DateBox
		s.DateBox = &r
	}
	if s.SignedAt != nil {
		t := *s.SignedAt
		s.SignedAt = &t
	}
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}
