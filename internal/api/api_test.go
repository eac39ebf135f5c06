package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/afesign/internal/auth"
	"github.com/dharsanguruparan/afesign/internal/chain"
	"github.com/dharsanguruparan/afesign/internal/config"
	"github.com/dharsanguruparan/afesign/internal/model"
	"github.com/dharsanguruparan/afesign/internal/pdf/pdftest"
	"github.com/dharsanguruparan/afesign/internal/signing"
	"github.com/dharsanguruparan/afesign/internal/storage"
	"github.com/dharsanguruparan/afesign/internal/workflow"
)

const jwtSecret = "api-test-secret"

type harness struct {
	t      *testing.T
	srv    *httptest.Server
	tokens map[string]string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStore()
	users := []model.User{
		{ID: "admin", Name: "Ada Admin", Email: "admin@example.com", Role: model.RoleAdmin},
		{ID: "s1", Name: "Sam One", Email: "s1@example.com", Title: "Engineer", Role: model.RoleSigner},
		{ID: "s2", Name: "Sue Two", Email: "s2@example.com", Title: "Geologist", Role: model.RoleSigner},
		{ID: "v1", Name: "Val Viewer", Email: "v1@example.com", Role: model.RoleViewer},
	}
	h := &harness{t: t, tokens: map[string]string{}}
	for i := range users {
		require.NoError(t, store.CreateUser(ctx, &users[i]))
		token, err := auth.IssueToken(users[i], jwtSecret, time.Hour)
		require.NoError(t, err)
		h.tokens[users[i].ID] = token
	}
	links := signing.NewSigner([]byte("link-secret"))
	cfg := &config.Config{
		Address:      ":0",
		JWTSecret:    jwtSecret,
		MaxFileSize:  1 << 20,
		AppURL:       "http://app",
		SignedURLTTL: time.Hour,
	}
	svc := workflow.New(workflow.Options{
		Store:     store,
		Blobs:     storage.NewMemoryBlobs(),
		Links:     links,
		PublicURL: "http://api",
		Logger:    zap.NewNop(),
	})
	h.srv = httptest.NewServer(New(cfg, svc, links, zap.NewNop()).Handler())
	t.Cleanup(h.srv.Close)
	return h
}

func (h *harness) do(user, method, path string, body any) *http.Response {
	h.t.Helper()
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(h.t, err)
		rdr = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rdr)
	require.NoError(h.t, err)
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+h.tokens[user])
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(h.t, err)
	h.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (h *harness) upload(user, name string, data []byte) *http.Response {
	h.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("note", "ignored")
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(h.t, err)
	_, err = fw.Write(data)
	require.NoError(h.t, err)
	require.NoError(h.t, mw.Close())
	req, err := http.NewRequest(http.MethodPost, h.srv.URL+"/api/upload", &buf)
	require.NoError(h.t, err)
	req.Header.Set("Authorization", "Bearer "+h.tokens[user])
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(h.t, err)
	h.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// draft uploads a PDF and creates a document from it.
func (h *harness) draft() model.AFE {
	h.t.Helper()
	resp := h.upload("admin", "budget.pdf", pdftest.PDF())
	require.Equal(h.t, http.StatusCreated, resp.StatusCode)
	up := decode[workflow.UploadResult](h.t, resp)

	resp = h.do("admin", http.MethodPost, "/api/afe", map[string]any{"afeName": "Well 7 Budget", "pdfKey": up.Key})
	require.Equal(h.t, http.StatusCreated, resp.StatusCode)
	return decode[model.AFE](h.t, resp)
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	resp := h.do("", http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPIRequiresToken(t *testing.T) {
	h := newHarness(t)
	resp := h.do("", http.MethodGet, "/api/afe", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthorized", decode[errorBody](t, resp).Code)
}

func TestErrorMapping(t *testing.T) {
	h := newHarness(t)
	afe := h.draft()

	tests := map[string]struct {
		user   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		"viewer cannot create": {"v1", http.MethodPost, "/api/afe", map[string]string{"afeName": "x", "pdfKey": "originals/x.pdf"}, http.StatusForbidden, "authorization"},
		"missing name":         {"admin", http.MethodPost, "/api/afe", map[string]string{"pdfKey": "originals/x.pdf"}, http.StatusBadRequest, "validation"},
		"unknown document":     {"admin", http.MethodGet, "/api/afe/nope", nil, http.StatusNotFound, "not_found"},
		"sign a draft":         {"s1", http.MethodPost, "/api/afe/" + afe.ID + "/sign", map[string]any{"confirmed": true, "signatureImage": pdftest.PNGDataURL(4, 2)}, http.StatusConflict, "state"},
		"final not ready":      {"admin", http.MethodGet, "/api/afe/" + afe.ID + "/pdf?final=true", nil, http.StatusNotFound, "not_found"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			resp := h.do(tt.user, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, decode[errorBody](t, resp).Code)
		})
	}
}

func TestUploadRejectsNonPDF(t *testing.T) {
	h := newHarness(t)
	resp := h.upload("admin", "notes.txt", []byte("hello"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = h.upload("admin", "big.pdf", append([]byte("%PDF-"), make([]byte, 1<<20)...))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSigningFlowOverHTTP(t *testing.T) {
	h := newHarness(t)
	afe := h.draft()
	base := "/api/afe/" + afe.ID

	resp := h.do("admin", http.MethodPost, base+"/signers", map[string]any{"signers": []chain.Assignment{
		{UserID: "s1", SigningOrder: 1, Signature: ptr(model.BoxPlacement(model.Rect{X: 72, Y: 100, Width: 150, Height: 40}))},
		{UserID: "s2", SigningOrder: 2, Signature: ptr(model.PointPlacement(model.Point{X: 400, Y: 100}))},
	}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, model.StatusPending, decode[model.AFE](t, resp).Status)

	resp = h.do("s2", http.MethodPost, base+"/sign", map[string]any{"confirmed": true, "signatureImage": pdftest.PNGDataURL(8, 4)})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = h.do("s1", http.MethodPost, base+"/sign", map[string]any{"confirmed": true, "signatureImage": pdftest.PNGDataURL(8, 4)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, model.StatusPartiallySigned, decode[workflow.SignResult](t, resp).Status)

	resp = h.do("admin", http.MethodGet, base+"/pdf?preview=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)

	req, err := http.NewRequest(http.MethodGet, h.srv.URL+base+"/pdf?preview=true", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+h.tokens["admin"])
	req.Header.Set("If-None-Match", etag)
	cached, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	cached.Body.Close()
	assert.Equal(t, http.StatusNotModified, cached.StatusCode)

	resp = h.do("s2", http.MethodPost, base+"/sign", map[string]any{"confirmed": true, "signatureImage": pdftest.PNGDataURL(8, 4)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, model.StatusFullySigned, decode[workflow.SignResult](t, resp).Status)

	resp = h.do("v1", http.MethodGet, base+"/pdf?final=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Equal(t, "private, max-age=3600", resp.Header.Get("Cache-Control"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "inline")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(body, []byte("%PDF-")))

	resp = h.do("admin", http.MethodGet, "/api/audit?entityType=AFE&entityId="+afe.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decode[model.Page[model.AuditEntry]](t, resp)
	assert.GreaterOrEqual(t, page.Total, 4)
}

func TestPDFRotateParam(t *testing.T) {
	h := newHarness(t)
	original := pdftest.PDF(pdftest.LetterLandscape)
	resp := h.upload("admin", "scan.pdf", original)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	up := decode[workflow.UploadResult](t, resp)
	resp = h.do("admin", http.MethodPost, "/api/afe", map[string]any{"afeName": "Scan", "pdfKey": up.Key})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	base := "/api/afe/" + decode[model.AFE](t, resp).ID

	read := func(query string) []byte {
		resp := h.do("v1", http.MethodGet, base+"/pdf"+query, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, query)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return body
	}

	assert.NotEqual(t, original, read(""), "sideways scan is fixed by default")
	assert.Equal(t, original, read("?rotate=left"), "unparseable angle serves pages as stored")
	assert.Equal(t, original, read("?rotate=45"))
	assert.NotEqual(t, original, read("?rotate=90"))
}

func TestDownloadLink(t *testing.T) {
	h := newHarness(t)
	afe := h.draft()
	base := "/api/afe/" + afe.ID
	resp := h.do("admin", http.MethodPost, base+"/signers", map[string]any{"signers": []chain.Assignment{{UserID: "s1", SigningOrder: 1}}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	links := signing.NewSigner([]byte("link-secret"))
	link := links.URL("", afe.ID, time.Hour)

	resp = h.do("", http.MethodGet, link, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = h.do("s1", http.MethodPost, base+"/sign", map[string]any{"confirmed": true, "signatureImage": pdftest.PNGDataURL(8, 4)})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.do("", http.MethodGet, link, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")

	u, err := url.Parse(link)
	require.NoError(t, err)
	q := u.Query()
	q.Set("signature", strings.Repeat("0", len(q.Get("signature"))))
	resp = h.do("", http.MethodGet, "/download?"+q.Encode(), nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = h.do("", http.MethodGet, "/download?afe="+afe.ID, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUsersAndSignature(t *testing.T) {
	h := newHarness(t)

	resp := h.do("admin", http.MethodPost, "/api/users", map[string]string{"email": "new@example.com", "name": "Nia New"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[model.User](t, resp)
	assert.Equal(t, model.RoleSigner, created.Role)

	resp = h.do("admin", http.MethodPost, "/api/users", map[string]string{"email": "NEW@example.com", "name": "Dup"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = h.do("s1", http.MethodGet, "/api/users?signersOnly=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]model.User](t, resp), 4)

	resp = h.do("admin", http.MethodPatch, "/api/users/admin", map[string]string{"role": "SIGNER"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = h.do("admin", http.MethodDelete, "/api/users/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = h.do("s1", http.MethodPost, "/api/users/me/signature", map[string]string{"signature": "data:image/jpeg;base64,AAAA"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	sig := pdftest.PNGDataURL(6, 3)
	resp = h.do("s1", http.MethodPost, "/api/users/me/signature", map[string]string{"signature": sig})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.do("s1", http.MethodGet, "/api/users/me/signature", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[map[string]any](t, resp)
	assert.Equal(t, sig, got["signature"])
	assert.Equal(t, true, got["hasSignature"])

	resp = h.do("s1", http.MethodDelete, "/api/users/me/signature", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuditQueryValidation(t *testing.T) {
	h := newHarness(t)
	resp := h.do("admin", http.MethodGet, "/api/audit?startDate=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = h.do("s1", http.MethodGet, "/api/audit", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = h.do("admin", http.MethodGet, "/api/audit?startDate=2026-01-02&endDate=2026-01-01", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func ptr[T any](v T) *T { return &v }
