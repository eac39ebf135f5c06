// Package audit writes the audit trail as a best-effort side channel.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/afesign/internal/model"
)

// Writer persists entries.
type Writer interface {
	InsertAudit(ctx context.Context, entry *model.AuditEntry) error
}

// Recorder logs instead of failing: callers never see audit errors.
type Recorder struct {
	store Writer
	log   *zap.Logger
	now   func() time.Time
}

// NewRecorder constructs a Recorder.
func NewRecorder(store Writer, log *zap.Logger) *Recorder {
	return &Recorder{store: store, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Record writes one entry attributed to actor.
func (r *Recorder) Record(ctx context.Context, actor model.Actor, entityType, entityID, action string, metadata map[string]any) {
	entry := &model.AuditEntry{
		ID:         uuid.NewString(),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		IPAddress:  actor.IPAddress,
		UserAgent:  actor.UserAgent,
		Metadata:   metadata,
		Timestamp:  r.now(),
	}
	if actor.ID != "" {
		id := actor.ID
		entry.UserID = &id
	}
	if err := r.store.InsertAudit(ctx, entry); err != nil {
		r.log.Warn("audit write failed",
			zap.String("entity_type", entityType),
			zap.String("entity_id", entityID),
			zap.String("action", action),
			zap.Error(err))
	}
}
