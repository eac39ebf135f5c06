package workflow

import (
	"context"
	"net/mail"
	"strings"

	"github.com/dharsanguruparan/afesign/internal/apperr"
	"github.com/dharsanguruparan/afesign/internal/model"
	pdfutil "github.com/dharsanguruparan/afesign/internal/pdf"
)

// UserInput creates a directory entry.
type UserInput struct {
	Email string     `json:"email"`
	Name  string     `json:"name"`
	Title string     `json:"title,omitempty"`
	Role  model.Role `json:"role,omitempty"`
}

// UserUpdate changes a directory entry. Nil fields stay as they are.
type UserUpdate struct {
	Name  *string     `json:"name,omitempty"`
	Title *string     `json:"title,omitempty"`
	Role  *model.Role `json:"role,omitempty"`
}

// ListUsers returns the directory. Any authenticated user may read it.
func (s *Service) ListUsers(ctx context.Context, actor model.Actor, filter model.UserFilter) ([]model.User, error) {
	const op = "list users"
	if err := requireUser(op, actor); err != nil {
		return nil, err
	}
	if filter.Role != "" && !filter.Role.Valid() {
		return nil, apperr.Validation(op, "unknown role %q", filter.Role)
	}
	users, err := s.store.ListUsers(ctx, filter)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []model.User{}
	}
	return users, nil
}

// CreateUser adds a user. Role defaults to SIGNER.
func (s *Service) CreateUser(ctx context.Context, actor model.Actor, in UserInput) (*model.User, error) {
	const op = "create user"
	if err := requireAdmin(op, actor); err != nil {
		return nil, err
	}
	email := strings.TrimSpace(in.Email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, apperr.Validation(op, "a valid email is required")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation(op, "name is required")
	}
	role := in.Role
	if role == "" {
		role = model.RoleSigner
	}
	if !role.Valid() {
		return nil, apperr.Validation(op, "unknown role %q", role)
	}
	user := &model.User{
		ID:    s.newID(),
		Email: email,
		Name:  name,
		Title: strings.TrimSpace(in.Title),
		Role:  role,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, actor, model.EntityUser, user.ID, model.ActionCreated, map[string]any{
		"email": user.Email,
		"role":  string(user.Role),
	})
	return user, nil
}

// UpdateUser changes name, title or role. The last admin keeps its role.
func (s *Service) UpdateUser(ctx context.Context, actor model.Actor, id string, in UserUpdate) (*model.User, error) {
	const op = "update user"
	if err := requireAdmin(op, actor); err != nil {
		return nil, err
	}
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := user.Role
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, apperr.Validation(op, "name cannot be empty")
		}
		user.Name = name
	}
	if in.Title != nil {
		user.Title = strings.TrimSpace(*in.Title)
	}
	if in.Role != nil {
		if !in.Role.Valid() {
			return nil, apperr.Validation(op, "unknown role %q", *in.Role)
		}
		if previous == model.RoleAdmin && *in.Role != model.RoleAdmin {
			if err := s.ensureAnotherAdmin(ctx, op, "cannot remove the last administrator"); err != nil {
				return nil, err
			}
		}
		user.Role = *in.Role
	}
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, actor, model.EntityUser, id, model.ActionUserUpdated, map[string]any{
		"previousRole": string(previous),
		"newRole":      string(user.Role),
		"title":        user.Title,
	})
	return user, nil
}

// DeleteUser removes a user who is not the last admin and holds no open slot.
func (s *Service) DeleteUser(ctx context.Context, actor model.Actor, id string) error {
	const op = "delete user"
	if err := requireAdmin(op, actor); err != nil {
		return err
	}
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if user.Role == model.RoleAdmin {
		if err := s.ensureAnotherAdmin(ctx, op, "cannot delete the last administrator"); err != nil {
			return err
		}
	}
	open, err := s.store.OpenSlotCount(ctx, id)
	if err != nil {
		return err
	}
	if open > 0 {
		return apperr.Validation(op, "cannot delete a user who is assigned to pending AFEs")
	}
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.audit.Record(ctx, actor, model.EntityUser, id, model.ActionDeleted, map[string]any{
		"email": user.Email,
		"role":  string(user.Role),
	})
	return nil
}

func (s *Service) ensureAnotherAdmin(ctx context.Context, op, msg string) error {
	admins, err := s.store.CountAdmins(ctx)
	if err != nil {
		return err
	}
	if admins <= 1 {
		return apperr.Validation(op, "%s", msg)
	}
	return nil
}

// SavedSignature returns the actor's saved signature, or "" when none.
func (s *Service) SavedSignature(ctx context.Context, actor model.Actor) (string, error) {
	if err := requireUser("get signature", actor); err != nil {
		return "", err
	}
	u, err := s.store.GetUser(ctx, actor.ID)
	if err != nil {
		return "", err
	}
	if u.SavedSignature == nil {
		return "", nil
	}
	return *u.SavedSignature, nil
}

// SaveSignature stores a PNG data URL for reuse.
func (s *Service) SaveSignature(ctx context.Context, actor model.Actor, dataURL string) error {
	const op = "save signature"
	if err := requireUser(op, actor); err != nil {
		return err
	}
	if !pdfutil.ValidSignatureDataURL(dataURL) {
		return apperr.Validation(op, "invalid signature format")
	}
	if err := s.store.SetSavedSignature(ctx, actor.ID, &dataURL); err != nil {
		return err
	}
	s.audit.Record(ctx, actor, model.EntityUser, actor.ID, model.ActionSignatureUpdated, nil)
	return nil
}

// RemoveSignature clears the saved signature.
func (s *Service) RemoveSignature(ctx context.Context, actor model.Actor) error {
	const op = "remove signature"
	if err := requireUser(op, actor); err != nil {
		return err
	}
	if err := s.store.SetSavedSignature(ctx, actor.ID, nil); err != nil {
		return err
	}
	s.audit.Record(ctx, actor, model.EntityUser, actor.ID, model.ActionSignatureRemoved, nil)
	return nil
}
