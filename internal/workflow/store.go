package workflow

import (
	"context"
	"time"

	"github.com/dharsanguruparan/afesign/internal/chain"
	"github.com/dharsanguruparan/afesign/internal/model"
)

// AFEStore persists documents and their signer slots.
type AFEStore interface {
	CreateAFE(ctx context.Context, afe *model.AFE) error
	// GetAFE returns the document with its creator and its slots in signing
	// order, each slot carrying its user.
	GetAFE(ctx context.Context, id string) (*model.AFE, error)
	ListAFEs(ctx context.Context, filter model.AFEFilter) ([]model.AFE, int, error)
	// Mutate locks the document and its slots, hands a snapshot to fn and
	// applies the returned transition in the same transaction. An error from
	// fn leaves everything untouched.
	Mutate(ctx context.Context, id string, fn func(afe model.AFE, signers []model.Signer) (chain.Transition, error)) (chain.Transition, error)
	// SetFinalPDF records the final artifact unless one is already recorded
	// or the document is not FULLY_SIGNED. It reports whether it wrote.
	SetFinalPDF(ctx context.Context, id, key string) (bool, error)
}

// UserStore persists the signer directory.
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	ListUsers(ctx context.Context, filter model.UserFilter) ([]model.User, error)
	UsersExist(ctx context.Context, ids []string) (map[string]bool, error)
	UpdateUser(ctx context.Context, user *model.User) error
	DeleteUser(ctx context.Context, id string) error
	CountAdmins(ctx context.Context) (int, error)
	// OpenSlotCount counts PENDING or ACTIVE slots held by the user.
	OpenSlotCount(ctx context.Context, userID string) (int, error)
	SetSavedSignature(ctx context.Context, userID string, dataURL *string) error
}

// AuditStore persists the audit trail.
type AuditStore interface {
	InsertAudit(ctx context.Context, entry *model.AuditEntry) error
	ListAudit(ctx context.Context, filter model.AuditFilter) ([]model.AuditEntry, int, error)
}

// Store is everything the workflow persists.
type Store interface {
	AFEStore
	UserStore
	AuditStore
}

// Blob areas.
const (
	AreaOriginal = "originals"
	AreaFinal    = "final"
)

// Blobs reads and writes PDF artifacts. Keys are opaque to callers.
type Blobs interface {
	Put(ctx context.Context, area, name string, data []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// Presigner is implemented by blob stores that can hand out direct links.
type Presigner interface {
	PresignURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// FinalizeScheduler retries final PDF generation in the background.
type FinalizeScheduler interface {
	ScheduleFinalize(ctx context.Context, afeID string) error
}
