package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dharsanguruparan/afesign/internal/apperr"
	"github.com/dharsanguruparan/afesign/internal/chain"
	"github.com/dharsanguruparan/afesign/internal/model"
	"github.com/dharsanguruparan/afesign/internal/workflow"
)

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxFileSize+1024)
	mr, err := r.MultipartReader()
	if err != nil {
		s.respondError(w, r, apperr.Validation("upload", "expecting multipart form"))
		return
	}
	part, err := nextFilePart(mr)
	if err != nil {
		s.respondError(w, r, apperr.Validation("upload", "missing file part"))
		return
	}
	defer part.Close()
	data, err := s.readPart(part)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	res, err := s.svc.Upload(r.Context(), actor(r), part.FileName(), data)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}

// readPart buffers one file part, refusing anything over the size limit.
func (s *Server) readPart(part *multipart.Part) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(part, s.cfg.MaxFileSize+1))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperr.Validation("upload", "file exceeds limit (%d bytes)", s.cfg.MaxFileSize)
		}
		return nil, apperr.Validation("upload", "failed to read upload")
	}
	if int64(len(data)) > s.cfg.MaxFileSize {
		return nil, apperr.Validation("upload", "file exceeds limit (%d bytes)", s.cfg.MaxFileSize)
	}
	return data, nil
}

func nextFilePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" {
			return part, nil
		}
		part.Close()
	}
}

func (s *Server) handleListAFEs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	in := workflow.ListInput{
		Status:   model.AFEStatus(q.Get("status")),
		Page:     queryInt(q.Get("page")),
		PageSize: queryInt(q.Get("pageSize")),
	}
	page, err := s.svc.List(r.Context(), actor(r), in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (s *Server) handleCreateAFE(w http.ResponseWriter, r *http.Request) {
	var in workflow.CreateInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	afe, err := s.svc.Create(r.Context(), actor(r), in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, afe)
}

func (s *Server) handleGetAFE(w http.ResponseWriter, r *http.Request) {
	afe, err := s.svc.Get(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, afe)
}

func (s *Server) handleDeleteAFE(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Delete(r.Context(), actor(r), chi.URLParam(r, "id")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type signersRequest struct {
	Signers []chain.Assignment `json:"signers"`
}

func (s *Server) handleAssignSigners(w http.ResponseWriter, r *http.Request) {
	s.assignSigners(w, r, s.svc.AssignSigners)
}

func (s *Server) handleReassignSigners(w http.ResponseWriter, r *http.Request) {
	s.assignSigners(w, r, s.svc.ReassignSigners)
}

type assignFunc func(context.Context, model.Actor, string, []chain.Assignment) (*model.AFE, error)

func (s *Server) assignSigners(w http.ResponseWriter, r *http.Request, assign assignFunc) {
	var in signersRequest
	if err := decodeJSON(w, r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	afe, err := assign(r.Context(), actor(r), chi.URLParam(r, "id"), in.Signers)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, afe)
}

func (s *Server) handleSign(w http.ResponseWriter, r *http.Request) {
	var in workflow.SignInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	res, err := s.svc.Sign(r.Context(), actor(r), chi.URLParam(r, "id"), in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var in workflow.RejectInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	afe, err := s.svc.Reject(r.Context(), actor(r), chi.URLParam(r, "id"), in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, afe)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	afe, err := s.svc.Cancel(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, afe)
}

func (s *Server) handleRemind(w http.ResponseWriter, r *http.Request) {
	signer, err := s.svc.Remind(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"message": "reminder sent", "signer": signer})
}

func (s *Server) handlePDF(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := workflow.PDFRequest{Variant: workflow.VariantOriginal}
	switch {
	case q.Get("final") == "true":
		req.Variant = workflow.VariantFinal
	case q.Get("preview") == "true":
		req.Variant = workflow.VariantPreview
	}
	if raw := q.Get("rotate"); raw != "" {
		deg, err := strconv.Atoi(raw)
		if err != nil {
			deg = workflow.KeepOrientation
		}
		req.Rotate = &deg
	}
	doc, err := s.svc.PDF(r.Context(), actor(r), chi.URLParam(r, "id"), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if doc.ETag != "" {
		w.Header().Set("ETag", doc.ETag)
		if r.Header.Get("If-None-Match") == doc.ETag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	writePDF(w, doc.Data, doc.FileName, "inline", doc.CacheControl)
}

func (s *Server) handleGeometry(w http.ResponseWriter, r *http.Request) {
	info, err := s.svc.Geometry(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

// handleDownload serves the final PDF behind an HMAC link. It redirects to a
// presigned object URL when the blob store supports one.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, expires, signature := q.Get("afe"), q.Get("expires"), q.Get("signature")
	if id == "" || expires == "" || signature == "" {
		s.respondError(w, r, apperr.Validation("download", "missing parameters"))
		return
	}
	if !s.links.Validate(id, expires, signature) {
		respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or expired link", "code": "unauthorized"})
		return
	}
	key, name, err := s.svc.FinalKey(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if u, ok := s.svc.Presign(r.Context(), key, presignTTL); ok {
		http.Redirect(w, r, u, http.StatusFound)
		return
	}
	data, err := s.svc.ReadBlob(r.Context(), key)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writePDF(w, data, name, "attachment", "private, no-store")
}

func writePDF(w http.ResponseWriter, data []byte, name, disposition, cache string) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, name))
	if cache != "" {
		w.Header().Set("Cache-Control", cache)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func queryInt(v string) int {
	n, _ := strconv.Atoi(v)
	return n
}
