// Package api exposes the AFE workflow over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/afesign/internal/apperr"
	"github.com/dharsanguruparan/afesign/internal/auth"
	"github.com/dharsanguruparan/afesign/internal/config"
	"github.com/dharsanguruparan/afesign/internal/model"
	"github.com/dharsanguruparan/afesign/internal/signing"
	"github.com/dharsanguruparan/afesign/internal/workflow"
)

const presignTTL = 15 * time.Minute

// Server exposes HTTP endpoints for documents, signers, users and audit.
type Server struct {
	cfg   *config.Config
	svc   *workflow.Service
	links *signing.Signer
	log   *zap.Logger
}

// New constructs a Server.
func New(cfg *config.Config, svc *workflow.Service, links *signing.Signer, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{cfg: cfg, svc: svc, links: links, log: log.Named("api")}
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.log.Info("api listening", zap.String("address", s.cfg.Address))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(s.cfg.AppURL))

	r.Get("/healthz", s.handleHealth)
	r.Get("/download", s.handleDownload)

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware(s.cfg.JWTSecret))

		r.Post("/upload", s.handleUpload)

		r.Route("/afe", func(r chi.Router) {
			r.Get("/", s.handleListAFEs)
			r.Post("/", s.handleCreateAFE)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetAFE)
				r.Delete("/", s.handleDeleteAFE)
				r.Post("/signers", s.handleAssignSigners)
				r.Put("/signers", s.handleReassignSigners)
				r.Post("/sign", s.handleSign)
				r.Post("/reject", s.handleReject)
				r.Post("/cancel", s.handleCancel)
				r.Post("/remind", s.handleRemind)
				r.Get("/pdf", s.handlePDF)
				r.Get("/geometry", s.handleGeometry)
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/", s.handleListUsers)
			r.Post("/", s.handleCreateUser)
			r.Get("/me/signature", s.handleGetSignature)
			r.Post("/me/signature", s.handleSaveSignature)
			r.Delete("/me/signature", s.handleRemoveSignature)
			r.Patch("/{id}", s.handleUpdateUser)
			r.Delete("/{id}", s.handleDeleteUser)
		})

		r.Get("/audit", s.handleAudit)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func actor(r *http.Request) model.Actor {
	a, _ := auth.ActorFrom(r.Context())
	return a
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 8<<20))
	if err := dec.Decode(v); err != nil {
		return apperr.Validation("decode request", "invalid request body")
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

var statusByKind = map[apperr.Kind]int{
	apperr.KindValidation:    http.StatusBadRequest,
	apperr.KindAuthorization: http.StatusForbidden,
	apperr.KindState:         http.StatusConflict,
	apperr.KindNotFound:      http.StatusNotFound,
	apperr.KindStorage:       http.StatusBadGateway,
	apperr.KindRender:        http.StatusInternalServerError,
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := http.StatusInternalServerError, "internal", "internal server error"
	var e *apperr.Error
	if errors.As(err, &e) {
		if st, ok := statusByKind[e.Kind]; ok {
			status = st
		}
		code, msg = string(e.Kind), e.Public()
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
	}
	respondJSON(w, status, map[string]string{"error": msg, "code": code})
}

func corsMiddleware(origin string) func(http.Handler) http.Handler {
	if origin == "" {
		origin = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,If-None-Match")
			w.Header().Set("Access-Control-Expose-Headers", "ETag,Content-Disposition")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
