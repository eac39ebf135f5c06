package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dharsanguruparan/afesign/internal/model"
)

// InsertAudit appends an audit entry.
func (r *Repository) InsertAudit(ctx context.Context, entry *model.AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	var meta []byte
	if len(entry.Metadata) > 0 {
		var err error
		if meta, err = json.Marshal(entry.Metadata); err != nil {
			return fmt.Errorf("encode audit metadata: %w", err)
		}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_logs (id, entity_type, entity_id, action, user_id, ip_address, user_agent, metadata, timestamp)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.EntityType, entry.EntityID, entry.Action, entry.UserID,
		nullable(entry.IPAddress), nullable(entry.UserAgent), meta, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

// ListAudit returns one page of matching entries newest first.
func (r *Repository) ListAudit(ctx context.Context, filter model.AuditFilter) ([]model.AuditEntry, int, error) {
	const where = `
		WHERE ($1 = '' OR l.entity_type = $1)
		  AND ($2 = '' OR l.entity_id = $2)
		  AND ($3 = '' OR l.user_id = $3)
		  AND ($4::timestamptz IS NULL OR l.timestamp >= $4)
		  AND ($5::timestamptz IS NULL OR l.timestamp <= $5)`
	args := []any{filter.EntityType, filter.EntityID, filter.UserID, filter.From, filter.To}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs l`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit: %w", err)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = total
	}
	rows, err := r.pool.Query(ctx, `
		SELECT l.id, l.entity_type, l.entity_id, l.action, l.user_id,
			COALESCE(l.ip_address,''), COALESCE(l.user_agent,''), l.metadata, l.timestamp,
			u.name, u.email
		FROM audit_logs l LEFT JOIN users u ON u.id = l.user_id`+where+`
		ORDER BY l.timestamp DESC
		LIMIT $6 OFFSET $7`, append(args, limit, filter.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()
	var out []model.AuditEntry
	for rows.Next() {
		var (
			e           model.AuditEntry
			meta        []byte
			name, email *string
		)
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.Action, &e.UserID,
			&e.IPAddress, &e.UserAgent, &meta, &e.Timestamp, &name, &email); err != nil {
			return nil, 0, fmt.Errorf("scan audit: %w", err)
		}
		m, err := unmarshalJSON[map[string]any](meta)
		if err != nil {
			return nil, 0, fmt.Errorf("decode audit metadata: %w", err)
		}
		if m != nil {
			e.Metadata = *m
		}
		if e.UserID != nil && name != nil {
			e.User = &model.User{ID: *e.UserID, Name: *name, Email: deref(email)}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list audit: %w", err)
	}
	return out, total, nil
}
