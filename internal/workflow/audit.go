package workflow

import (
	"context"

	"github.com/dharsanguruparan/afesign/internal/apperr"
	"github.com/dharsanguruparan/afesign/internal/model"
)

// AuditQuery filters the audit trail. EntityType with EntityID selects the
// history of one entity; otherwise the remaining fields filter globally.
type AuditQuery struct {
	model.AuditFilter
	Page     int
	PageSize int
}

// Audit returns one page of audit entries, 50 per page by default and 100 at
// most.
func (s *Service) Audit(ctx context.Context, actor model.Actor, q AuditQuery) (model.Page[model.AuditEntry], error) {
	const op = "audit"
	if err := requireAdmin(op, actor); err != nil {
		return model.Page[model.AuditEntry]{}, err
	}
	if q.From != nil && q.To != nil && q.To.Before(*q.From) {
		return model.Page[model.AuditEntry]{}, apperr.Validation(op, "end date is before start date")
	}
	page, size := pageBounds(q.Page, q.PageSize, 50, 100)
	filter := q.AuditFilter
	if filter.EntityID != "" && filter.EntityType == "" {
		return model.Page[model.AuditEntry]{}, apperr.Validation(op, "entity type is required with an entity id")
	}
	filter.Offset = (page - 1) * size
	filter.Limit = size
	items, total, err := s.store.ListAudit(ctx, filter)
	if err != nil {
		return model.Page[model.AuditEntry]{}, err
	}
	return model.NewPage(items, total, page, size), nil
}
