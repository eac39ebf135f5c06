// Package storage contains the in-memory persistence layer used by tests and
// by the server when no database is configured. A single RWMutex guards all
// maps, so Mutate is serialized exactly like a row-locking transaction.
package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dharsanguruparan/afesign/internal/apperr"
	"github.com/dharsanguruparan/afesign/internal/chain"
	"github.com/dharsanguruparan/afesign/internal/model"
)

// MemoryStore keeps documents, slots, users and audit entries in maps.
// Every read returns copies.
type MemoryStore struct {
	mu      sync.RWMutex
	afes    map[string]*model.AFE
	signers map[string][]model.Signer
	users   map[string]*model.User
	audit   []model.AuditEntry
	now     func() time.Time
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		afes:    make(map[string]*model.AFE),
		signers: make(map[string][]model.Signer),
		users:   make(map[string]*model.User),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateAFE inserts a document.
func (m *MemoryStore) CreateAFE(ctx context.Context, afe *model.AFE) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if afe.CreatedAt.IsZero() {
		afe.CreatedAt = now
	}
	afe.UpdatedAt = now
	stored := *afe
	stored.Signers = nil
	stored.CreatedBy = nil
	m.afes[afe.ID] = &stored
	return nil
}

// GetAFE returns a document with its creator and slots.
func (m *MemoryStore) GetAFE(ctx context.Context, id string) (*model.AFE, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	afe, ok := m.afes[id]
	if !ok {
		return nil, apperr.NotFound("get afe", "AFE not found")
	}
	out := m.hydrate(*afe)
	return &out, nil
}

// ListAFEs returns documents newest first.
func (m *MemoryStore) ListAFEs(ctx context.Context, filter model.AFEFilter) ([]model.AFE, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var all []model.AFE
	for _, afe := range m.afes {
		if filter.Status != "" && afe.Status != filter.Status {
			continue
		}
		all = append(all, *afe)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	total := len(all)
	page := window(all, filter.Offset, filter.Limit)
	out := make([]model.AFE, len(page))
	for i, afe := range page {
		out[i] = m.hydrate(afe)
	}
	return out, total, nil
}

// Mutate applies fn's transition while holding the write lock.
func (m *MemoryStore) Mutate(ctx context.Context, id string, fn func(model.AFE, []model.Signer) (chain.Transition, error)) (chain.Transition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	afe, ok := m.afes[id]
	if !ok {
		return chain.Transition{}, apperr.NotFound("update afe", "AFE not found")
	}
	snapshot := m.hydrate(*afe)
	t, err := fn(snapshot, model.CloneSigners(snapshot.Signers))
	if err != nil {
		return chain.Transition{}, err
	}
	if t.Delete {
		delete(m.afes, id)
		delete(m.signers, id)
		return t, nil
	}
	next := chain.Apply(m.signers[id], t)
	for i := range next {
		next[i].User = nil
	}
	m.signers[id] = next
	if t.Status != "" {
		afe.Status = t.Status
		afe.UpdatedAt = m.now()
	}
	return t, nil
}

// SetFinalPDF records the final key once.
func (m *MemoryStore) SetFinalPDF(ctx context.Context, id, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	afe, ok := m.afes[id]
	if !ok {
		return false, apperr.NotFound("set final pdf", "AFE not found")
	}
	if afe.FinalPDFKey != nil || afe.Status != model.StatusFullySigned {
		return false, nil
	}
	k := key
	afe.FinalPDFKey = &k
	afe.UpdatedAt = m.now()
	return true, nil
}

// CreateUser inserts a user with a unique email.
func (m *MemoryStore) CreateUser(ctx context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, user.Email) {
			return apperr.Validation("create user", "a user with email %s already exists", user.Email)
		}
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = m.now()
	}
	stored := *user
	m.users[user.ID] = &stored
	return nil
}

// GetUser returns a user by id.
func (m *MemoryStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperr.NotFound("get user", "user not found")
	}
	out := *u
	return &out, nil
}

// ListUsers returns users sorted by name.
func (m *MemoryStore) ListUsers(ctx context.Context, filter model.UserFilter) ([]model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	search := strings.ToLower(filter.Search)
	var out []model.User
	for _, u := range m.users {
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if filter.SignersOnly && u.Role == model.RoleViewer {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(u.Name), search) && !strings.Contains(strings.ToLower(u.Email), search) {
			continue
		}
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// UsersExist reports which ids are known.
func (m *MemoryStore) UsersExist(ctx context.Context, ids []string) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		_, out[id] = m.users[id]
	}
	return out, nil
}

// UpdateUser replaces name, title and role.
func (m *MemoryStore) UpdateUser(ctx context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[user.ID]
	if !ok {
		return apperr.NotFound("update user", "user not found")
	}
	u.Name = user.Name
	u.Title = user.Title
	u.Role = user.Role
	return nil
}

// DeleteUser removes a user.
func (m *MemoryStore) DeleteUser(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return apperr.NotFound("delete user", "user not found")
	}
	delete(m.users, id)
	return nil
}

// CountAdmins counts users with the ADMIN role.
func (m *MemoryStore) CountAdmins(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, u := range m.users {
		if u.Role == model.RoleAdmin {
			n++
		}
	}
	return n, nil
}

// OpenSlotCount counts PENDING or ACTIVE slots held by userID.
func (m *MemoryStore) OpenSlotCount(ctx context.Context, userID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, slots := range m.signers {
		for _, s := range slots {
			if s.UserID == userID && s.Status.Open() {
				n++
			}
		}
	}
	return n, nil
}

// SetSavedSignature stores or clears a user's saved signature.
func (m *MemoryStore) SetSavedSignature(ctx context.Context, userID string, dataURL *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return apperr.NotFound("save signature", "user not found")
	}
	if dataURL == nil {
		u.SavedSignature = nil
		return nil
	}
	sig := *dataURL
	u.SavedSignature = &sig
	return nil
}

// InsertAudit appends an audit entry.
func (m *MemoryStore) InsertAudit(ctx context.Context, entry *model.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = m.now()
	}
	m.audit = append(m.audit, *entry)
	return nil
}

// ListAudit returns matching entries newest first.
func (m *MemoryStore) ListAudit(ctx context.Context, filter model.AuditFilter) ([]model.AuditEntry, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.AuditEntry
	for i := len(m.audit) - 1; i >= 0; i-- {
		e := m.audit[i]
		if filter.EntityType != "" && e.EntityType != filter.EntityType {
			continue
		}
		if filter.EntityID != "" && e.EntityID != filter.EntityID {
			continue
		}
		if filter.UserID != "" && (e.UserID == nil || *e.UserID != filter.UserID) {
			continue
		}
		if filter.From != nil && e.Timestamp.Before(*filter.From) {
			continue
		}
		if filter.To != nil && e.Timestamp.After(*filter.To) {
			continue
		}
		if e.UserID != nil {
			if u, ok := m.users[*e.UserID]; ok {
				e.User = &model.User{ID: u.ID, Name: u.Name, Email: u.Email}
			}
		}
		out = append(out, e)
	}
	return window(out, filter.Offset, filter.Limit), len(out), nil
}

// hydrate attaches creator and slots. Callers hold the lock.
func (m *MemoryStore) hydrate(afe model.AFE) model.AFE {
	if u, ok := m.users[afe.CreatedByID]; ok {
		c := *u
		afe.CreatedBy = &c
	}
	slots := model.CloneSigners(m.signers[afe.ID])
	for i := range slots {
		if u, ok := m.users[slots[i].UserID]; ok {
			c := *u
			slots[i].User = &c
		}
	}
	model.SortSigners(slots)
	afe.Signers = slots
	if afe.FinalPDFKey != nil {
		k := *afe.FinalPDFKey
		afe.FinalPDFKey = &k
	}
	return afe
}

func window[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
