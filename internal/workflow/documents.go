package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/afesign/internal/apperr"
	"github.com/dharsanguruparan/afesign/internal/model"
	"github.com/dharsanguruparan/afesign/internal/notify"
	pdfutil "github.com/dharsanguruparan/afesign/internal/pdf"
)

// PDFVariant selects which rendering of a document is served.
type PDFVariant string

const (
	VariantOriginal PDFVariant = "original"
	VariantPreview  PDFVariant = "preview"
	VariantFinal    PDFVariant = "final"
)

// KeepOrientation is a Rotate value that serves pages as stored, without the
// sideways-scan fix.
const KeepOrientation = 0

// PDFRequest selects the variant and orientation. A nil Rotate applies the
// sideways-scan fix; 90, 180 or 270 rotate every page; any other value
// leaves pages alone.
type PDFRequest struct {
	Variant PDFVariant
	Rotate  *int
}

// PDFDocument is a rendered PDF with caching hints.
type PDFDocument struct {
	Data         []byte
	FileName     string
	ETag         string
	CacheControl string
}

const (
	cachePrivate = "private, max-age=3600"
	cacheNone    = "no-cache"
)

// PDF returns the original, preview or final bytes of a document.
func (s *Service) PDF(ctx context.Context, actor model.Actor, afeID string, req PDFRequest) (*PDFDocument, error) {
	const op = "get pdf"
	if err := requireUser(op, actor); err != nil {
		return nil, err
	}
	afe, err := s.store.GetAFE(ctx, afeID)
	if err != nil {
		return nil, err
	}
	var doc *PDFDocument
	switch req.Variant {
	case VariantFinal:
		doc, err = s.finalPDF(ctx, afe)
	case VariantPreview:
		doc, err = s.previewPDF(ctx, afe)
	default:
		doc, err = s.originalPDF(ctx, afe)
	}
	if err != nil {
		return nil, err
	}
	doc.Data = s.orient(afe.ID, doc.Data, req.Rotate)
	if req.Rotate != nil {
		doc.ETag = strings.TrimSuffix(doc.ETag, `"`) + fmt.Sprintf(`-r%d"`, *req.Rotate)
	}
	return doc, nil
}

func (s *Service) originalPDF(ctx context.Context, afe *model.AFE) (*PDFDocument, error) {
	data, err := s.blobs.Get(ctx, afe.OriginalPDFKey)
	if err != nil {
		return nil, storageErr("read original pdf", err)
	}
	return &PDFDocument{
		Data:         data,
		FileName:     fileName(afe.Name, ""),
		ETag:         etag("original", afe.ID),
		CacheControl: cachePrivate,
	}, nil
}

func (s *Service) finalPDF(ctx context.Context, afe *model.AFE) (*PDFDocument, error) {
	if afe.FinalPDFKey == nil {
		return nil, apperr.NotFound("get final pdf", "final signed PDF not available yet")
	}
	data, err := s.blobs.Get(ctx, *afe.FinalPDFKey)
	if err != nil {
		return nil, storageErr("read final pdf", err)
	}
	return &PDFDocument{
		Data:         data,
		FileName:     fileName(afe.Name, "signed"),
		ETag:         etag("final", *afe.FinalPDFKey),
		CacheControl: cachePrivate,
	}, nil
}

// previewPDF annotates the original with every SIGNED slot. Without
// signatures it serves the original; a render failure serves the original
// as well and is logged.
func (s *Service) previewPDF(ctx context.Context, afe *model.AFE) (*PDFDocument, error) {
	marks := pdfutil.MarksFor(afe.Signers)
	if len(marks) == 0 {
		return s.originalPDF(ctx, afe)
	}
	original, err := s.blobs.Get(ctx, afe.OriginalPDFKey)
	if err != nil {
		return nil, storageErr("read original pdf", err)
	}
	data, err := s.annotator.Annotate(original, marks)
	if err != nil {
		s.log.Warn("preview render failed, serving original", zap.String("afe_id", afe.ID), zap.Error(err))
		data = original
	}
	return &PDFDocument{
		Data:         data,
		FileName:     fileName(afe.Name, "preview"),
		ETag:         etag("preview", fmt.Sprintf("%s-%d", afe.ID, latestSignature(afe.Signers).UnixNano())),
		CacheControl: cacheNone,
	}, nil
}

// orient applies the requested rotation. Failures keep the input bytes.
func (s *Service) orient(afeID string, data []byte, rotate *int) []byte {
	requested := 0
	if rotate != nil {
		if !pdfutil.ValidRotation(*rotate) {
			return data
		}
		requested = *rotate
	}
	out, err := pdfutil.Orient(data, requested)
	if err != nil {
		s.log.Warn("rotation failed, serving unrotated", zap.String("afe_id", afeID), zap.Error(err))
	}
	return out
}

// Geometry returns the page sizes and rotations of the original PDF.
func (s *Service) Geometry(ctx context.Context, actor model.Actor, afeID string) (*pdfutil.Info, error) {
	const op = "get geometry"
	if err := requireUser(op, actor); err != nil {
		return nil, err
	}
	afe, err := s.store.GetAFE(ctx, afeID)
	if err != nil {
		return nil, err
	}
	data, err := s.blobs.Get(ctx, afe.OriginalPDFKey)
	if err != nil {
		return nil, storageErr(op, err)
	}
	info, err := pdfutil.Inspect(data)
	if err != nil {
		return nil, apperr.Render(op, err)
	}
	return &info, nil
}

// Finalize generates and records the final PDF of a FULLY_SIGNED document.
// It is idempotent: an existing final key is returned as is.
func (s *Service) Finalize(ctx context.Context, afeID string) (string, error) {
	afe, err := s.store.GetAFE(ctx, afeID)
	if err != nil {
		return "", err
	}
	if afe.FinalPDFKey != nil {
		return *afe.FinalPDFKey, nil
	}
	if afe.Status != model.StatusFullySigned {
		return "", apperr.State("finalize", "AFE is %s, not fully signed", afe.Status)
	}
	return s.finalize(ctx, afe)
}

func (s *Service) finalize(ctx context.Context, afe *model.AFE) (string, error) {
	const op = "finalize"
	if afe.FinalPDFKey != nil {
		return *afe.FinalPDFKey, nil
	}
	original, err := s.blobs.Get(ctx, afe.OriginalPDFKey)
	if err != nil {
		return "", storageErr(op, err)
	}
	data, err := s.annotator.Annotate(original, pdfutil.MarksFor(afe.Signers))
	if err != nil {
		return "", apperr.Render(op, err)
	}
	key, err := s.blobs.Put(ctx, AreaFinal, fileName(afe.Name, "signed"), data)
	if err != nil {
		return "", storageErr(op, err)
	}
	wrote, err := s.store.SetFinalPDF(ctx, afe.ID, key)
	if err != nil {
		return "", err
	}
	if !wrote {
		// Another attempt recorded its artifact first; ours is orphaned.
		current, err := s.store.GetAFE(ctx, afe.ID)
		if err != nil {
			return "", err
		}
		if current.FinalPDFKey == nil {
			return "", apperr.State(op, "AFE is %s, not fully signed", current.Status)
		}
		s.log.Info("final pdf already recorded", zap.String("afe_id", afe.ID), zap.String("orphan", key))
		return *current.FinalPDFKey, nil
	}
	s.audit.Record(ctx, model.Actor{}, model.EntityAFE, afe.ID, model.ActionFinalized, map[string]any{"key": key})
	s.log.Info("final pdf generated", zap.String("afe_id", afe.ID), zap.String("key", key))
	return key, nil
}

// complete runs the post-commit side effects of the last signature: the
// final PDF, then the completion notice to the creator and distribution list.
func (s *Service) complete(ctx context.Context, afe *model.AFE) {
	key, err := s.finalize(ctx, afe)
	if err != nil {
		s.log.Error("final pdf generation failed", zap.String("afe_id", afe.ID), zap.Error(err))
		if s.finalizer != nil {
			if err := s.finalizer.ScheduleFinalize(ctx, afe.ID); err != nil {
				s.log.Error("final pdf retry not scheduled", zap.String("afe_id", afe.ID), zap.Error(err))
			}
		}
	}
	msg := notify.Message{
		Kind: notify.KindFullySigned,
		Data: notify.Data{AFEID: afe.ID, AFEName: afe.Name},
	}
	if key != "" {
		msg.AttachmentKey = key
		msg.AttachmentName = fileName(afe.Name, "signed")
		if s.links != nil && s.publicURL != "" {
			msg.Data.DownloadURL = s.links.URL(s.publicURL, afe.ID, s.linkTTL)
		}
	}
	recipients := make([]string, 0, len(s.distribution)+1)
	if afe.CreatedBy != nil {
		recipients = append(recipients, afe.CreatedBy.Email)
	}
	recipients = append(recipients, s.distribution...)
	s.notifier.Broadcast(ctx, msg, recipients)
}

// FinalKey resolves the final PDF key for a download link. It does not check
// the caller: the link signature already did.
func (s *Service) FinalKey(ctx context.Context, afeID string) (string, string, error) {
	afe, err := s.store.GetAFE(ctx, afeID)
	if err != nil {
		return "", "", err
	}
	if afe.FinalPDFKey == nil {
		return "", "", apperr.NotFound("download", "final signed PDF not available yet")
	}
	return *afe.FinalPDFKey, fileName(afe.Name, "signed"), nil
}

// ReadBlob returns the bytes behind a key.
func (s *Service) ReadBlob(ctx context.Context, key string) ([]byte, error) {
	data, err := s.blobs.Get(ctx, key)
	if err != nil {
		return nil, storageErr("read blob", err)
	}
	return data, nil
}

// Presign returns a direct link when the blob store supports it.
func (s *Service) Presign(ctx context.Context, key string, ttl time.Duration) (string, bool) {
	p, ok := s.blobs.(Presigner)
	if !ok {
		return "", false
	}
	u, err := p.PresignURL(ctx, key, ttl)
	if err != nil {
		s.log.Warn("presign failed", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return u, true
}

func latestSignature(signers []model.Signer) time.Time {
	var latest time.Time
	for _, sg := range signers {
		if sg.SignedAt != nil && sg.SignedAt.After(latest) {
			latest = *sg.SignedAt
		}
	}
	return latest
}

func etag(kind, id string) string {
	return fmt.Sprintf(`"%s-%s"`, kind, id)
}

// fileName turns a document name into a download file name.
func fileName(name, suffix string) string {
	base := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == ' ' {
			return r
		}
		return '-'
	}, strings.TrimSpace(name))
	if base == "" {
		base = "afe"
	}
	if suffix != "" {
		base += "-" + suffix
	}
	return base + ".pdf"
}
