// Package workflow ties the signer chain to persistence, PDF rendering,
// notifications and the audit trail. Every mutation runs as one store
// transaction; side effects run after commit and never fail the call.
package workflow

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/afesign/internal/apperr"
	"github.com/dharsanguruparan/afesign/internal/audit"
	"github.com/dharsanguruparan/afesign/internal/model"
	"github.com/dharsanguruparan/afesign/internal/notify"
	pdfutil "github.com/dharsanguruparan/afesign/internal/pdf"
)

const (
	defaultMaxFileSize = 50 << 20
	defaultLinkTTL     = 7 * 24 * time.Hour
)

// LinkSigner mints expiring download links for final PDFs.
type LinkSigner interface {
	URL(base, afeID string, ttl time.Duration) string
}

// Options wires a Service. Store and Blobs are required.
type Options struct {
	Store     Store
	Blobs     Blobs
	Annotator *pdfutil.Annotator
	Notifier  *notify.Notifier
	Audit     *audit.Recorder
	// Finalizer retries final PDF generation when the inline attempt fails.
	Finalizer FinalizeScheduler
	Links     LinkSigner
	PublicURL string
	LinkTTL   time.Duration
	// Distribution receives completion notices alongside the creator.
	Distribution []string
	MaxFileSize  int64
	Logger       *zap.Logger
}

// Service implements the AFE operations.
type Service struct {
	store        Store
	blobs        Blobs
	annotator    *pdfutil.Annotator
	notifier     *notify.Notifier
	audit        *audit.Recorder
	finalizer    FinalizeScheduler
	links        LinkSigner
	publicURL    string
	linkTTL      time.Duration
	distribution []string
	maxFileSize  int64
	log          *zap.Logger
	now          func() time.Time
	newID        func() string
}

// New constructs a Service, filling defaults for optional collaborators.
func New(opts Options) *Service {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		store:        opts.Store,
		blobs:        opts.Blobs,
		annotator:    opts.Annotator,
		notifier:     opts.Notifier,
		audit:        opts.Audit,
		finalizer:    opts.Finalizer,
		links:        opts.Links,
		publicURL:    opts.PublicURL,
		linkTTL:      opts.LinkTTL,
		distribution: opts.Distribution,
		maxFileSize:  opts.MaxFileSize,
		log:          log.Named("workflow"),
		now:          func() time.Time { return time.Now().UTC() },
		newID:        uuid.NewString,
	}
	if s.annotator == nil {
		s.annotator = pdfutil.NewAnnotator(time.UTC, log)
	}
	if s.notifier == nil {
		s.notifier = notify.NewNotifier(nil, log)
	}
	if s.audit == nil {
		s.audit = audit.NewRecorder(opts.Store, log)
	}
	if s.linkTTL <= 0 {
		s.linkTTL = defaultLinkTTL
	}
	if s.maxFileSize <= 0 {
		s.maxFileSize = defaultMaxFileSize
	}
	return s
}

func requireUser(op string, actor model.Actor) error {
	if actor.ID == "" {
		return apperr.Authorization(op, "authentication required")
	}
	return nil
}

func requireAdmin(op string, actor model.Actor) error {
	if err := requireUser(op, actor); err != nil {
		return err
	}
	if !actor.IsAdmin() {
		return apperr.Authorization(op, "admin access required")
	}
	return nil
}

// storageErr keeps typed errors and classifies the rest as storage failures.
func storageErr(op string, err error) error {
	if apperr.KindOf(err) != "" {
		return err
	}
	return apperr.Storage(op, err)
}

func pageBounds(page, size, def, max int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = def
	}
	if size > max {
		size = max
	}
	return page, size
}
