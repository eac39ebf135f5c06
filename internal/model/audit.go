package model

import "time"

// Audit entity types.
const (
	EntityAFE    = "AFE"
	EntityUser   = "USER"
	EntitySigner = "SIGNER"
)

// Audit actions.
const (
	ActionCreated          = "CREATED"
	ActionSignersAssigned  = "SIGNERS_ASSIGNED"
	ActionSigned           = "SIGNED"
	ActionRejected         = "REJECTED"
	ActionCancelled        = "CANCELLED"
	ActionReminderSent     = "REMINDER_SENT"
	ActionDeleted          = "DELETED"
	ActionFinalized        = "FINAL_PDF_GENERATED"
	ActionUserUpdated      = "USER_UPDATED"
	ActionSignatureUpdated = "SIGNATURE_UPDATED"
	ActionSignatureRemoved = "SIGNATURE_REMOVED"
)

// AuditEntry records one mutation for the audit trail.
type AuditEntry struct {
	ID         string         `json:"id"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	Action     string         `json:"action"`
	UserID     *string        `json:"userId,omitempty"`
	User       *User          `json:"user,omitempty"`
	IPAddress  string         `json:"ipAddress,omitempty"`
	UserAgent  string         `json:"userAgent,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Page is one page of a paginated listing.
type Page[T any] struct {
	Items      []T `json:"data"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalPages int `json:"totalPages"`
}

// NewPage fills in the derived page count.
func NewPage[T any](items []T, total, page, size int) Page[T] {
	pages := 0
	if size > 0 {
		pages = (total + size - 1) / size
	}
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Total: total, Page: page, PageSize: size, TotalPages: pages}
}
