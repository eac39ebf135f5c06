package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dharsanguruparan/afesign/internal/chain"
	"github.com/dharsanguruparan/afesign/internal/model"
)

const afeColumns = `a.id, a.afe_name, a.afe_number, a.status, a.original_pdf_key, a.final_pdf_key,
	a.created_by_id, a.created_at, a.updated_at, u.id, u.email, u.name, u.title, u.role`

const signerColumns = `s.id, s.afe_id, s.user_id, s.signing_order, s.status,
	s.signature_x, s.signature_y, s.signature_width, s.signature_height,
	s.title_box, s.date_box, COALESCE(s.signature_image,''), s.signed_at,
	COALESCE(s.ip_address,''), COALESCE(s.user_agent,''), s.created_at,
	u.id, u.email, u.name, u.title, u.role`

// CreateAFE inserts a document.
func (r *Repository) CreateAFE(ctx context.Context, afe *model.AFE) error {
	now := time.Now().UTC()
	afe.CreatedAt = now
	afe.UpdatedAt = now
	_, err := r.pool.Exec(ctx, `
		INSERT INTO afes (id, afe_name, afe_number, status, original_pdf_key, final_pdf_key, created_by_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, afe.ID, afe.Name, afe.Number, afe.Status, afe.OriginalPDFKey, afe.FinalPDFKey, afe.CreatedByID, afe.CreatedAt, afe.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert afe: %w", err)
	}
	return nil
}

// GetAFE returns a document with its creator and slots.
func (r *Repository) GetAFE(ctx context.Context, id string) (*model.AFE, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+afeColumns+`
		FROM afes a LEFT JOIN users u ON u.id = a.created_by_id
		WHERE a.id=$1`, id)
	afe, err := scanAFE(row)
	if err != nil {
		return nil, notFound("select afe", "AFE", err)
	}
	signers, err := loadSigners(ctx, r.pool, id, false)
	if err != nil {
		return nil, err
	}
	afe.Signers = signers
	return afe, nil
}

// ListAFEs returns one page of documents newest first with the total count.
func (r *Repository) ListAFEs(ctx context.Context, filter model.AFEFilter) ([]model.AFE, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM afes WHERE ($1 = '' OR status = $1)
	`, string(filter.Status)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count afes: %w", err)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = total
	}
	rows, err := r.pool.Query(ctx, `SELECT `+afeColumns+`
		FROM afes a LEFT JOIN users u ON u.id = a.created_by_id
		WHERE ($1 = '' OR a.status = $1)
		ORDER BY a.created_at DESC, a.id DESC
		LIMIT $2 OFFSET $3`, string(filter.Status), limit, filter.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list afes: %w", err)
	}
	defer rows.Close()
	var out []model.AFE
	for rows.Next() {
		afe, err := scanAFE(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan afe: %w", err)
		}
		out = append(out, *afe)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list afes: %w", err)
	}
	for i := range out {
		signers, err := loadSigners(ctx, r.pool, out[i].ID, false)
		if err != nil {
			return nil, 0, err
		}
		out[i].Signers = signers
	}
	return out, total, nil
}

// Mutate locks the document row and its slots, lets fn decide the
// transition against that snapshot and writes it before commit.
func (r *Repository) Mutate(ctx context.Context, id string, fn func(model.AFE, []model.Signer) (chain.Transition, error)) (chain.Transition, error) {
	var result chain.Transition
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+afeColumns+`
			FROM afes a LEFT JOIN users u ON u.id = a.created_by_id
			WHERE a.id=$1 FOR UPDATE OF a`, id)
		afe, err := scanAFE(row)
		if err != nil {
			return notFound("lock afe", "AFE", err)
		}
		signers, err := loadSigners(ctx, tx, id, true)
		if err != nil {
			return err
		}
		afe.Signers = model.CloneSigners(signers)
		t, err := fn(*afe, signers)
		if err != nil {
			return err
		}
		if err := applyTransition(ctx, tx, id, t); err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return chain.Transition{}, err
	}
	return result, nil
}

// SetFinalPDF writes the final key once, and only for FULLY_SIGNED documents.
func (r *Repository) SetFinalPDF(ctx context.Context, id, key string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE afes SET final_pdf_key=$1, updated_at=$2
		WHERE id=$3 AND final_pdf_key IS NULL AND status=$4
	`, key, time.Now().UTC(), id, model.StatusFullySigned)
	if err != nil {
		return false, fmt.Errorf("set final pdf: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func applyTransition(ctx context.Context, tx pgx.Tx, id string, t chain.Transition) error {
	if t.Delete {
		if _, err := tx.Exec(ctx, `DELETE FROM afes WHERE id=$1`, id); err != nil {
			return fmt.Errorf("delete afe: %w", err)
		}
		return nil
	}
	if t.Replace {
		if _, err := tx.Exec(ctx, `DELETE FROM afe_signers WHERE afe_id=$1`, id); err != nil {
			return fmt.Errorf("clear signers: %w", err)
		}
		for _, s := range t.Signers {
			if err := insertSigner(ctx, tx, s); err != nil {
				return err
			}
		}
	} else {
		for _, s := range t.Signers {
			if err := updateSigner(ctx, tx, s); err != nil {
				return err
			}
		}
	}
	if t.Status != "" {
		if _, err := tx.Exec(ctx, `UPDATE afes SET status=$1, updated_at=$2 WHERE id=$3`,
			t.Status, time.Now().UTC(), id); err != nil {
			return fmt.Errorf("update afe status: %w", err)
		}
	}
	return nil
}

func insertSigner(ctx context.Context, tx pgx.Tx, s model.Signer) error {
	x, y, w, h := s.Signature.Columns()
	titleBox, err := marshalJSON(s.TitleBox)
	if err != nil {
		return fmt.Errorf("encode title box: %w", err)
	}
	dateBox, err := marshalJSON(s.DateBox)
	if err != nil {
		return fmt.Errorf("encode date box: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO afe_signers (id, afe_id, user_id, signing_order, status,
			signature_x, signature_y, signature_width, signature_height,
			title_box, date_box, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, s.ID, s.AFEID, s.UserID, s.SigningOrder, s.Status, x, y, w, h, titleBox, dateBox, s.CreatedAt)
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return fmt.Errorf("insert signer: unknown user %s: %w", s.UserID, err)
		}
		return fmt.Errorf("insert signer: %w", err)
	}
	return nil
}

func updateSigner(ctx context.Context, tx pgx.Tx, s model.Signer) error {
	x, y, w, h := s.Signature.Columns()
	var image *string
	if s.SignatureImage != "" {
		image = &s.SignatureImage
	}
	_, err := tx.Exec(ctx, `
		UPDATE afe_signers SET status=$1,
			signature_x=$2, signature_y=$3, signature_width=$4, signature_height=$5,
			signature_image=$6, signed_at=$7, ip_address=$8, user_agent=$9
		WHERE id=$10
	`, s.Status, x, y, w, h, image, s.SignedAt, nullable(s.IPAddress), nullable(s.UserAgent), s.ID)
	if err != nil {
		return fmt.Errorf("update signer: %w", err)
	}
	return nil
}

func loadSigners(ctx context.Context, q querier, afeID string, lock bool) ([]model.Signer, error) {
	stmt := `SELECT ` + signerColumns + `
		FROM afe_signers s JOIN users u ON u.id = s.user_id
		WHERE s.afe_id=$1 ORDER BY s.signing_order`
	if lock {
		stmt += ` FOR UPDATE OF s`
	}
	rows, err := q.Query(ctx, stmt, afeID)
	if err != nil {
		return nil, fmt.Errorf("select signers: %w", err)
	}
	defer rows.Close()
	var out []model.Signer
	for rows.Next() {
		var (
			s                 model.Signer
			u                 model.User
			x, y, w, h        *float64
			titleBox, dateBox []byte
		)
		if err := rows.Scan(&s.ID, &s.AFEID, &s.UserID, &s.SigningOrder, &s.Status,
			&x, &y, &w, &h, &titleBox, &dateBox, &s.SignatureImage, &s.SignedAt,
			&s.IPAddress, &s.UserAgent, &s.CreatedAt,
			&u.ID, &u.Email, &u.Name, &u.Title, &u.Role); err != nil {
			return nil, fmt.Errorf("scan signer: %w", err)
		}
		s.Signature = model.PlacementFromColumns(x, y, w, h)
		if s.TitleBox, err = unmarshalJSON[model.Rect](titleBox); err != nil {
			return nil, fmt.Errorf("decode title box: %w", err)
		}
		if s.DateBox, err = unmarshalJSON[model.Rect](dateBox); err != nil {
			return nil, fmt.Errorf("decode date box: %w", err)
		}
		s.User = &u
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select signers: %w", err)
	}
	return out, nil
}

func scanAFE(row pgx.Row) (*model.AFE, error) {
	var (
		afe                          model.AFE
		creatorID, email, name, role *string
		title                        *string
	)
	if err := row.Scan(&afe.ID, &afe.Name, &afe.Number, &afe.Status, &afe.OriginalPDFKey, &afe.FinalPDFKey,
		&afe.CreatedByID, &afe.CreatedAt, &afe.UpdatedAt, &creatorID, &email, &name, &title, &role); err != nil {
		return nil, err
	}
	if creatorID != nil {
		afe.CreatedBy = &model.User{ID: *creatorID, Email: deref(email), Name: deref(name), Title: deref(title), Role: model.Role(deref(role))}
	}
	return &afe, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
