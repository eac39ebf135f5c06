package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dharsanguruparan/afesign/internal/apperr"
	"github.com/dharsanguruparan/afesign/internal/model"
	"github.com/dharsanguruparan/afesign/internal/workflow"
)

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.UserFilter{
		Role:        model.Role(q.Get("role")),
		SignersOnly: q.Get("signersOnly") == "true",
		Search:      q.Get("search"),
	}
	users, err := s.svc.ListUsers(r.Context(), actor(r), filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, users)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var in workflow.UserInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	u, err := s.svc.CreateUser(r.Context(), actor(r), in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, u)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var in workflow.UserUpdate
	if err := decodeJSON(w, r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	u, err := s.svc.UpdateUser(r.Context(), actor(r), chi.URLParam(r, "id"), in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, u)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteUser(r.Context(), actor(r), chi.URLParam(r, "id")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type signatureBody struct {
	Signature string `json:"signature"`
}

func (s *Server) handleGetSignature(w http.ResponseWriter, r *http.Request) {
	sig, err := s.svc.SavedSignature(r.Context(), actor(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"signature": sig, "hasSignature": sig != ""})
}

func (s *Server) handleSaveSignature(w http.ResponseWriter, r *http.Request) {
	var in signatureBody
	if err := decodeJSON(w, r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.svc.SaveSignature(r.Context(), actor(r), in.Signature); err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "signature saved"})
}

func (s *Server) handleRemoveSignature(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.RemoveSignature(r.Context(), actor(r)); err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "signature removed"})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := workflow.AuditQuery{
		AuditFilter: model.AuditFilter{
			EntityType: q.Get("entityType"),
			EntityID:   q.Get("entityId"),
			UserID:     q.Get("userId"),
		},
		Page:     queryInt(q.Get("page")),
		PageSize: queryInt(q.Get("limit")),
	}
	var err error
	if query.From, err = queryTime(q.Get("startDate")); err != nil {
		s.respondError(w, r, err)
		return
	}
	if query.To, err = queryTime(q.Get("endDate")); err != nil {
		s.respondError(w, r, err)
		return
	}
	page, err := s.svc.Audit(r.Context(), actor(r), query)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// queryTime accepts RFC 3339 timestamps or plain dates.
func queryTime(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t, nil
		}
	}
	return nil, apperr.Validation("audit", "invalid date %q", v)
}
