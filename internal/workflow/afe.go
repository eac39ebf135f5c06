package workflow

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/afesign/internal/apperr"
	"github.com/dharsanguruparan/afesign/internal/chain"
	"github.com/dharsanguruparan/afesign/internal/model"
	pdfutil "github.com/dharsanguruparan/afesign/internal/pdf"
)

const (
	maxNameLength   = 255
	maxNumberLength = 100
)

// UploadResult describes a stored original PDF.
type UploadResult struct {
	Key       string             `json:"key"`
	FileName  string             `json:"fileName"`
	Size      int64              `json:"size"`
	PageCount int                `json:"pageCount"`
	Page      model.PageGeometry `json:"page"`
}

// Upload validates and stores an original PDF.
func (s *Service) Upload(ctx context.Context, actor model.Actor, fileName string, data []byte) (*UploadResult, error) {
	const op = "upload"
	if err := requireAdmin(op, actor); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, apperr.Validation(op, "no file provided")
	}
	if int64(len(data)) > s.maxFileSize {
		return nil, apperr.Validation(op, "file size exceeds the %d MB limit", s.maxFileSize>>20)
	}
	if !strings.EqualFold(filepath.Ext(fileName), ".pdf") {
		return nil, apperr.Validation(op, "only PDF files are allowed")
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return nil, apperr.Validation(op, "file content is not a PDF")
	}
	info, err := pdfutil.Inspect(data)
	if err != nil {
		return nil, apperr.Validation(op, "file could not be read as a PDF: %v", err)
	}
	key, err := s.blobs.Put(ctx, AreaOriginal, fileName, data)
	if err != nil {
		return nil, storageErr(op, err)
	}
	s.log.Info("original stored", zap.String("key", key), zap.Int("bytes", len(data)))
	return &UploadResult{
		Key:       key,
		FileName:  filepath.Base(fileName),
		Size:      int64(len(data)),
		PageCount: info.PageCount,
		Page:      info.First(),
	}, nil
}

// CreateInput is the payload for a new document.
type CreateInput struct {
	Name   string  `json:"afeName"`
	Number *string `json:"afeNumber,omitempty"`
	PDFKey string  `json:"pdfKey"`
}

// Create inserts a DRAFT document for an uploaded PDF.
func (s *Service) Create(ctx context.Context, actor model.Actor, in CreateInput) (*model.AFE, error) {
	const op = "create afe"
	if err := requireAdmin(op, actor); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation(op, "AFE name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return nil, apperr.Validation(op, "AFE name must be at most %d characters", maxNameLength)
	}
	var number *string
	if in.Number != nil {
		if n := strings.TrimSpace(*in.Number); n != "" {
			if utf8.RuneCountInString(n) > maxNumberLength {
				return nil, apperr.Validation(op, "AFE number must be at most %d characters", maxNumberLength)
			}
			number = &n
		}
	}
	if !strings.HasPrefix(in.PDFKey, AreaOriginal+"/") {
		return nil, apperr.Validation(op, "PDF is required")
	}
	afe := &model.AFE{
		ID:             s.newID(),
		Name:           name,
		Number:         number,
		Status:         model.StatusDraft,
		OriginalPDFKey: in.PDFKey,
		CreatedByID:    actor.ID,
	}
	if err := s.store.CreateAFE(ctx, afe); err != nil {
		return nil, err
	}
	meta := map[string]any{"afeName": name}
	if number != nil {
		meta["afeNumber"] = *number
	}
	s.audit.Record(ctx, actor, model.EntityAFE, afe.ID, model.ActionCreated, meta)
	return s.store.GetAFE(ctx, afe.ID)
}

// Get returns a document with its slots.
func (s *Service) Get(ctx context.Context, actor model.Actor, id string) (*model.AFE, error) {
	if err := requireUser("get afe", actor); err != nil {
		return nil, err
	}
	return s.store.GetAFE(ctx, id)
}

// ListInput filters and pages a listing.
type ListInput struct {
	Status   model.AFEStatus
	Page     int
	PageSize int
}

// List returns documents newest first, ten per page by default.
func (s *Service) List(ctx context.Context, actor model.Actor, in ListInput) (model.Page[model.AFE], error) {
	const op = "list afes"
	if err := requireUser(op, actor); err != nil {
		return model.Page[model.AFE]{}, err
	}
	if in.Status != "" && !in.Status.Valid() {
		return model.Page[model.AFE]{}, apperr.Validation(op, "unknown status %q", in.Status)
	}
	page, size := pageBounds(in.Page, in.PageSize, 10, 100)
	items, total, err := s.store.ListAFEs(ctx, model.AFEFilter{
		Status: in.Status,
		Offset: (page - 1) * size,
		Limit:  size,
	})
	if err != nil {
		return model.Page[model.AFE]{}, err
	}
	return model.NewPage(items, total, page, size), nil
}

// Delete removes a DRAFT document and its slots.
func (s *Service) Delete(ctx context.Context, actor model.Actor, id string) error {
	const op = "delete afe"
	if err := requireAdmin(op, actor); err != nil {
		return err
	}
	var name string
	_, err := s.store.Mutate(ctx, id, func(afe model.AFE, _ []model.Signer) (chain.Transition, error) {
		name = afe.Name
		return chain.Delete(afe.Status)
	})
	if err != nil {
		return err
	}
	s.audit.Record(ctx, actor, model.EntityAFE, id, model.ActionDeleted, map[string]any{"afeName": name})
	return nil
}

// Cancel ends the chain of a document that is not FULLY_SIGNED or CANCELLED.
func (s *Service) Cancel(ctx context.Context, actor model.Actor, id string) (*model.AFE, error) {
	const op = "cancel afe"
	if err := requireAdmin(op, actor); err != nil {
		return nil, err
	}
	var previous model.AFEStatus
	_, err := s.store.Mutate(ctx, id, func(afe model.AFE, _ []model.Signer) (chain.Transition, error) {
		previous = afe.Status
		return chain.Cancel(afe.Status)
	})
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, actor, model.EntityAFE, id, model.ActionCancelled, map[string]any{"previousStatus": string(previous)})
	return s.store.GetAFE(ctx, id)
}
