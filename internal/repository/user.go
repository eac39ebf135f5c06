package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/dharsanguruparan/afesign/internal/apperr"
	"github.com/dharsanguruparan/afesign/internal/model"
)

const userColumns = `id, email, name, title, role, saved_signature, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Title, &u.Role, &u.SavedSignature, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a user. Emails are unique case-insensitively.
func (r *Repository) CreateUser(ctx context.Context, user *model.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, email, name, title, role, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, user.ID, user.Email, user.Name, user.Title, user.Role, user.CreatedAt)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return apperr.Validation("create user", "a user with email %s already exists", user.Email)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUser returns a user by id.
func (r *Repository) GetUser(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
	if err != nil {
		return nil, notFound("select user", "user", err)
	}
	return u, nil
}

// ListUsers returns users ordered by name.
func (r *Repository) ListUsers(ctx context.Context, filter model.UserFilter) ([]model.User, error) {
	search := ""
	if filter.Search != "" {
		search = "%" + filter.Search + "%"
	}
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users
		WHERE ($1 = '' OR role = $1)
		  AND (NOT $2 OR role <> $3)
		  AND ($4 = '' OR name ILIKE $4 OR email ILIKE $4)
		ORDER BY name`, string(filter.Role), filter.SignersOnly, model.RoleViewer, search)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// UsersExist reports which of ids are present.
func (r *Repository) UsersExist(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = false
	}
	rows, err := r.pool.Query(ctx, `SELECT id FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("check users: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

// UpdateUser writes name, title and role.
func (r *Repository) UpdateUser(ctx context.Context, user *model.User) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET name=$1, title=$2, role=$3 WHERE id=$4`,
		user.Name, user.Title, user.Role, user.ID)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("update user", "user not found")
	}
	return nil
}

// DeleteUser removes a user. Users referenced by documents or slots stay.
func (r *Repository) DeleteUser(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return apperr.State("delete user", "user is referenced by existing AFEs")
		}
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("delete user", "user not found")
	}
	return nil
}

// CountAdmins counts ADMIN users.
func (r *Repository) CountAdmins(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE role=$1`, model.RoleAdmin).Scan(&n); err != nil {
		return 0, fmt.Errorf("count admins: %w", err)
	}
	return n, nil
}

// OpenSlotCount counts PENDING or ACTIVE slots held by userID.
func (r *Repository) OpenSlotCount(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM afe_signers WHERE user_id=$1 AND status IN ($2,$3)`,
		userID, model.SignerPending, model.SignerActive).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count open slots: %w", err)
	}
	return n, nil
}

// SetSavedSignature stores, or clears when dataURL is nil, the saved signature.
func (r *Repository) SetSavedSignature(ctx context.Context, userID string, dataURL *string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET saved_signature=$1 WHERE id=$2`, dataURL, userID)
	if err != nil {
		return fmt.Errorf("save signature: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("save signature", "user not found")
	}
	return nil
}
