package model

import "time"

// AFEFilter narrows a document listing.
type AFEFilter struct {
	Status AFEStatus
	Offset int
	Limit  int
}

// UserFilter narrows a directory listing.
type UserFilter struct {
	Role        Role
	SignersOnly bool
	Search      string
}

// AuditFilter narrows an audit trail query. Empty fields match everything.
type AuditFilter struct {
	EntityType string
	EntityID   string
	UserID     string
	From       *time.Time
	To         *time.Time
	Offset     int
	Limit      int
}
