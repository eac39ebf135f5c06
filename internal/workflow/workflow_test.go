package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/afesign/internal/apperr"
	"github.com/dharsanguruparan/afesign/internal/chain"
	"github.com/dharsanguruparan/afesign/internal/model"
	"github.com/dharsanguruparan/afesign/internal/notify"
	pdfutil "github.com/dharsanguruparan/afesign/internal/pdf"
	"github.com/dharsanguruparan/afesign/internal/pdf/pdftest"
	"github.com/dharsanguruparan/afesign/internal/storage"
)

type outbox struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (o *outbox) Send(ctx context.Context, msg notify.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, msg)
	return nil
}

func (o *outbox) of(kind notify.Kind) []notify.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []notify.Message
	for _, m := range o.msgs {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

type failingBlobs struct {
	*storage.MemoryBlobs
	failArea string
}

func (b *failingBlobs) Put(ctx context.Context, area, name string, data []byte) (string, error) {
	if area == b.failArea {
		return "", errors.New("bucket unavailable")
	}
	return b.MemoryBlobs.Put(ctx, area, name, data)
}

type scheduler struct {
	mu  sync.Mutex
	ids []string
}

func (s *scheduler) ScheduleFinalize(ctx context.Context, afeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, afeID)
	return nil
}

type staticLinks struct{}

func (staticLinks) URL(base, afeID string, ttl time.Duration) string {
	return base + "/download?afe=" + afeID
}

type fixture struct {
	svc     *Service
	store   *storage.MemoryStore
	blobs   Blobs
	outbox  *outbox
	sched   *scheduler
	admin   model.Actor
	signers []model.Actor
	viewer  model.Actor
}

type fixtureOption func(*Options)

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		store:  storage.NewMemoryStore(),
		blobs:  storage.NewMemoryBlobs(),
		outbox: &outbox{},
		sched:  &scheduler{},
	}
	addUser := func(id, name, email, title string, role model.Role) model.Actor {
		require.NoError(t, f.store.CreateUser(ctx, &model.User{ID: id, Name: name, Email: email, Title: title, Role: role}))
		return model.Actor{ID: id, Name: name, Email: email, Role: role, IPAddress: "10.0.0.1", UserAgent: "test"}
	}
	f.admin = addUser("admin", "Ada Admin", "admin@example.com", "Manager", model.RoleAdmin)
	f.signers = []model.Actor{
		addUser("s1", "Sam One", "s1@example.com", "Engineer", model.RoleSigner),
		addUser("s2", "Sue Two", "s2@example.com", "Geologist", model.RoleSigner),
		addUser("s3", "Sid Three", "s3@example.com", "VP Operations", model.RoleSigner),
	}
	f.viewer = addUser("v1", "Val Viewer", "viewer@example.com", "", model.RoleViewer)

	o := Options{
		Store:        f.store,
		Blobs:        f.blobs,
		Notifier:     notify.NewNotifier(f.outbox, zap.NewNop()),
		Finalizer:    f.sched,
		Links:        staticLinks{},
		PublicURL:    "http://api",
		Distribution: []string{"ops@example.com", "ADMIN@example.com"},
		Logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	f.blobs = o.Blobs
	f.svc = New(o)
	return f
}

func (f *fixture) draft(t *testing.T) *model.AFE {
	t.Helper()
	ctx := context.Background()
	up, err := f.svc.Upload(ctx, f.admin, "well-7.pdf", pdftest.PDF(pdftest.Letter))
	require.NoError(t, err)
	afe, err := f.svc.Create(ctx, f.admin, CreateInput{Name: "Well 7 Completion", PDFKey: up.Key})
	require.NoError(t, err)
	return afe
}

func (f *fixture) pending(t *testing.T) *model.AFE {
	t.Helper()
	afe := f.draft(t)
	box := model.BoxPlacement(model.Rect{X: 72, Y: 100, Width: 150, Height: 40})
	list := []chain.Assignment{
		{UserID: "s1", SigningOrder: 1, Signature: &box, TitleBox: &model.Rect{X: 72, Y: 150}, DateBox: &model.Rect{X: 240, Y: 100}},
		{UserID: "s2", SigningOrder: 2},
		{UserID: "s3", SigningOrder: 3},
	}
	afe, err := f.svc.AssignSigners(context.Background(), f.admin, afe.ID, list)
	require.NoError(t, err)
	return afe
}

func signInput() SignInput {
	return SignInput{Confirmed: true, Signature: pdftest.PNGDataURL(200, 60)}
}

func statuses(afe *model.AFE) []model.SignerStatus {
	out := make([]model.SignerStatus, len(afe.Signers))
	for i, s := range afe.Signers {
		out[i] = s.Status
	}
	return out
}

func TestUploadValidation(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.MaxFileSize = 1024 })
	ctx := context.Background()
	good := pdftest.PDF(pdftest.Letter)

	tests := []struct {
		name  string
		actor model.Actor
		file  string
		data  []byte
		kind  apperr.Kind
	}{
		{"non admin", f.signers[0], "a.pdf", good, apperr.KindAuthorization},
		{"empty", f.admin, "a.pdf", nil, apperr.KindValidation},
		{"too large", f.admin, "a.pdf", make([]byte, 2048), apperr.KindValidation},
		{"wrong extension", f.admin, "a.docx", good, apperr.KindValidation},
		{"not a pdf", f.admin, "a.pdf", []byte("hello world"), apperr.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Upload(ctx, tt.actor, tt.file, tt.data)
			assert.True(t, apperr.Is(err, tt.kind), "got %v", err)
		})
	}

	up, err := f.svc.Upload(ctx, f.admin, "Report.PDF", good)
	require.NoError(t, err)
	assert.Equal(t, 1, up.PageCount)
	assert.Equal(t, pdfutil.Letter.Width, up.Page.Width)
	assert.Equal(t, "Report.PDF", up.FileName)
}

func TestCreateStartsAsDraft(t *testing.T) {
	f := newFixture(t)
	afe := f.draft(t)
	assert.Equal(t, model.StatusDraft, afe.Status)
	assert.Empty(t, afe.Signers)
	require.NotNil(t, afe.CreatedBy)
	assert.Equal(t, "admin@example.com", afe.CreatedBy.Email)

	_, err := f.svc.Create(context.Background(), f.admin, CreateInput{Name: " ", PDFKey: afe.OriginalPDFKey})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = f.svc.Create(context.Background(), f.admin, CreateInput{Name: "x", PDFKey: "final/whatever.pdf"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestAssignActivatesFirstSignerAndNotifies(t *testing.T) {
	f := newFixture(t)
	afe := f.pending(t)

	assert.Equal(t, model.StatusPending, afe.Status)
	assert.Equal(t, []model.SignerStatus{model.SignerActive, model.SignerPending, model.SignerPending}, statuses(afe))
	activated := f.outbox.of(notify.KindSignerActivated)
	require.Len(t, activated, 1)
	assert.Equal(t, "s1@example.com", activated[0].To)
	assert.Equal(t, afe.ID, activated[0].Data.AFEID)
}

func TestAssignRejectsUnknownUsersAndNonDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	afe := f.draft(t)

	_, err := f.svc.AssignSigners(ctx, f.admin, afe.ID, []chain.Assignment{{UserID: "ghost", SigningOrder: 1}})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = f.svc.AssignSigners(ctx, f.signers[0], afe.ID, []chain.Assignment{{UserID: "s1", SigningOrder: 1}})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	pending := f.pending(t)
	_, err = f.svc.ReassignSigners(ctx, f.admin, pending.ID, []chain.Assignment{{UserID: "s2", SigningOrder: 1}})
	assert.True(t, apperr.Is(err, apperr.KindState))
	_, err = f.svc.ReassignSigners(ctx, f.admin, pending.ID, []chain.Assignment{{UserID: "ghost", SigningOrder: 1}})
	assert.True(t, apperr.Is(err, apperr.KindState), "locked document wins over unknown user: %v", err)
}

func TestSequentialSigningScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	afe := f.pending(t)

	res, err := f.svc.Sign(ctx, f.signers[0], afe.ID, signInput())
	require.NoError(t, err)
	assert.Equal(t, model.StatusPartiallySigned, res.Status)

	_, err = f.svc.Sign(ctx, f.signers[2], afe.ID, signInput())
	assert.True(t, apperr.Is(err, apperr.KindAuthorization), "out of turn: %v", err)

	res, err = f.svc.Sign(ctx, f.signers[1], afe.ID, signInput())
	require.NoError(t, err)
	assert.Equal(t, model.StatusPartiallySigned, res.Status)

	res, err = f.svc.Sign(ctx, f.signers[2], afe.ID, signInput())
	require.NoError(t, err)
	assert.Equal(t, model.StatusFullySigned, res.Status)
	assert.Equal(t, "AFE has been fully signed", res.Message)

	got, err := f.svc.Get(ctx, f.viewer, afe.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFullySigned, got.Status)
	assert.Equal(t, []model.SignerStatus{model.SignerSigned, model.SignerSigned, model.SignerSigned}, statuses(got))
	require.NotNil(t, got.FinalPDFKey)
	require.NoError(t, chain.CheckInvariants(got.Signers))

	first := got.Signers[0]
	assert.Equal(t, "10.0.0.1", first.IPAddress)
	assert.Equal(t, "test", first.UserAgent)
	require.NotNil(t, first.SignedAt)

	activated := f.outbox.of(notify.KindSignerActivated)
	require.Len(t, activated, 3)
	assert.Equal(t, "s2@example.com", activated[1].To)
	assert.Equal(t, "s3@example.com", activated[2].To)

	done := f.outbox.of(notify.KindFullySigned)
	recipients := make([]string, 0, len(done))
	for _, m := range done {
		recipients = append(recipients, m.To)
		assert.Equal(t, *got.FinalPDFKey, m.AttachmentKey)
		assert.Equal(t, "http://api/download?afe="+afe.ID, m.Data.DownloadURL)
	}
	assert.ElementsMatch(t, []string{"admin@example.com", "ops@example.com"}, recipients)

	_, err = f.svc.Sign(ctx, f.signers[2], afe.ID, signInput())
	assert.True(t, apperr.Is(err, apperr.KindState))
}

func TestSignValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	afe := f.pending(t)

	_, err := f.svc.Sign(ctx, f.signers[0], afe.ID, SignInput{Signature: pdftest.PNGDataURL(10, 10)})
	assert.True(t, apperr.Is(err, apperr.KindValidation), "unconfirmed")
	_, err = f.svc.Sign(ctx, f.signers[0], afe.ID, SignInput{Confirmed: true})
	assert.True(t, apperr.Is(err, apperr.KindValidation), "missing image")
	_, err = f.svc.Sign(ctx, f.signers[0], afe.ID, SignInput{Confirmed: true, Signature: "data:image/jpeg;base64,AAAA"})
	assert.True(t, apperr.Is(err, apperr.KindValidation), "not png")
	_, err = f.svc.Sign(ctx, f.signers[0], afe.ID, SignInput{Confirmed: true, UseSaved: true})
	assert.True(t, apperr.Is(err, apperr.KindValidation), "no saved signature")
	_, err = f.svc.Sign(ctx, f.viewer, afe.ID, signInput())
	assert.True(t, apperr.Is(err, apperr.KindAuthorization), "not a signer")
	_, err = f.svc.Sign(ctx, f.signers[0], "missing", signInput())
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	got, err := f.svc.Get(ctx, f.admin, afe.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status, "failed attempts change nothing")
}

func TestSignWithSavedSignatureAndPlacementOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	afe := f.pending(t)

	require.NoError(t, f.svc.SaveSignature(ctx, f.signers[0], pdftest.PNGDataURL(100, 30)))
	point := model.PointPlacement(model.Point{X: 300, Y: 200})
	_, err := f.svc.Sign(ctx, f.signers[0], afe.ID, SignInput{Confirmed: true, UseSaved: true, Placement: &point})
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, f.admin, afe.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Signers[0].Signature)
	assert.Equal(t, model.PlacementPoint, got.Signers[0].Signature.Kind)
	assert.Equal(t, pdftest.PNGDataURL(100, 30), got.Signers[0].SignatureImage)
}

func TestRejectIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	afe := f.pending(t)
	_, err := f.svc.Sign(ctx, f.signers[0], afe.ID, signInput())
	require.NoError(t, err)

	got, err := f.svc.Reject(ctx, f.signers[1], afe.ID, RejectInput{Reason: " over budget "})
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, got.Status)
	assert.Equal(t, model.SignerRejected, got.Signers[1].Status)

	rejected := f.outbox.of(notify.KindRejected)
	require.Len(t, rejected, 1)
	assert.Equal(t, "admin@example.com", rejected[0].To)
	assert.Equal(t, "Sue Two", rejected[0].Data.RejectedBy)
	assert.Equal(t, "over budget", rejected[0].Data.Reason)

	for _, actor := range f.signers {
		_, err := f.svc.Sign(ctx, actor, afe.ID, signInput())
		assert.True(t, apperr.Is(err, apperr.KindState), actor.ID)
		_, err = f.svc.Reject(ctx, actor, afe.ID, RejectInput{})
		assert.True(t, apperr.Is(err, apperr.KindState), actor.ID)
	}
	_, err = f.svc.Cancel(ctx, f.admin, afe.ID)
	assert.True(t, apperr.Is(err, apperr.KindState))
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	afe := f.pending(t)

	_, err := f.svc.Cancel(ctx, f.signers[0], afe.ID)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	got, err := f.svc.Cancel(ctx, f.admin, afe.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)

	_, err = f.svc.Cancel(ctx, f.admin, afe.ID)
	assert.True(t, apperr.Is(err, apperr.KindState))
	_, err = f.svc.Sign(ctx, f.signers[0], afe.ID, signInput())
	assert.True(t, apperr.Is(err, apperr.KindState))
}

func TestRemindOnlyWhilePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	afe := f.pending(t)

	slot, err := f.svc.Remind(ctx, f.admin, afe.ID)
	require.NoError(t, err)
	assert.Equal(t, "s1", slot.UserID)
	reminders := f.outbox.of(notify.KindReminder)
	require.Len(t, reminders, 1)
	assert.Equal(t, "s1@example.com", reminders[0].To)
	assert.Equal(t, "Sam One", reminders[0].Data.SignerName)

	_, err = f.svc.Sign(ctx, f.signers[0], afe.ID, signInput())
	require.NoError(t, err)
	_, err = f.svc.Remind(ctx, f.admin, afe.ID)
	assert.True(t, apperr.Is(err, apperr.KindState), "partially signed documents are not reminded")

	draft := f.draft(t)
	_, err = f.svc.Remind(ctx, f.admin, draft.ID)
	assert.True(t, apperr.Is(err, apperr.KindState))
}

func TestDeleteOnlyDrafts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	draft := f.draft(t)
	pending := f.pending(t)

	err := f.svc.Delete(ctx, f.admin, pending.ID)
	assert.True(t, apperr.Is(err, apperr.KindState))

	require.NoError(t, f.svc.Delete(ctx, f.admin, draft.ID))
	_, err = f.svc.Get(ctx, f.admin, draft.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestListPaginatesNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.draft(t)
	}
	f.pending(t)

	page, err := f.svc.List(ctx, f.viewer, ListInput{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Items, 2)

	page, err = f.svc.List(ctx, f.viewer, ListInput{Status: model.StatusPending})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 10, page.PageSize)

	_, err = f.svc.List(ctx, f.viewer, ListInput{Status: "BOGUS"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestFinalPDFFailureSchedulesRetry(t *testing.T) {
	mem := storage.NewMemoryBlobs()
	blobs := &failingBlobs{MemoryBlobs: mem, failArea: AreaFinal}
	f := newFixture(t, func(o *Options) { o.Blobs = blobs })
	ctx := context.Background()
	afe := f.pending(t)

	for _, actor := range f.signers {
		_, err := f.svc.Sign(ctx, actor, afe.ID, signInput())
		require.NoError(t, err, "signature commits even when the final PDF fails")
	}
	got, err := f.svc.Get(ctx, f.admin, afe.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFullySigned, got.Status)
	assert.Nil(t, got.FinalPDFKey)
	assert.Equal(t, []string{afe.ID}, f.sched.ids)

	done := f.outbox.of(notify.KindFullySigned)
	require.NotEmpty(t, done)
	assert.Empty(t, done[0].AttachmentKey)

	_, err = f.svc.PDF(ctx, f.admin, afe.ID, PDFRequest{Variant: VariantFinal})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	blobs.failArea = ""
	key, err := f.svc.Finalize(ctx, afe.ID)
	require.NoError(t, err)
	again, err := f.svc.Finalize(ctx, afe.ID)
	require.NoError(t, err)
	assert.Equal(t, key, again, "finalize is idempotent")
}

func TestFinalizeRequiresFullySigned(t *testing.T) {
	f := newFixture(t)
	afe := f.pending(t)
	_, err := f.svc.Finalize(context.Background(), afe.ID)
	assert.True(t, apperr.Is(err, apperr.KindState))
}

func TestPDFVariants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	afe := f.pending(t)

	original, err := f.svc.PDF(ctx, f.viewer, afe.ID, PDFRequest{Variant: VariantOriginal})
	require.NoError(t, err)
	assert.Equal(t, "private, max-age=3600", original.CacheControl)
	assert.Equal(t, "Well 7 Completion.pdf", original.FileName)

	preview, err := f.svc.PDF(ctx, f.viewer, afe.ID, PDFRequest{Variant: VariantPreview})
	require.NoError(t, err)
	assert.Equal(t, original.Data, preview.Data, "no signatures yet")

	_, err = f.svc.Sign(ctx, f.signers[0], afe.ID, signInput())
	require.NoError(t, err)
	preview, err = f.svc.PDF(ctx, f.viewer, afe.ID, PDFRequest{Variant: VariantPreview})
	require.NoError(t, err)
	assert.Equal(t, "no-cache", preview.CacheControl)
	assert.NotEqual(t, original.Data, preview.Data)
	assert.Contains(t, preview.ETag, afe.ID)

	zero := 0
	same, err := f.svc.PDF(ctx, f.viewer, afe.ID, PDFRequest{Rotate: &zero})
	require.NoError(t, err)
	assert.Equal(t, original.Data, same.Data, "rotate=0 leaves portrait pages alone")
}

func TestGeometry(t *testing.T) {
	f := newFixture(t)
	afe := f.draft(t)
	info, err := f.svc.Geometry(context.Background(), f.viewer, afe.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, info.PageCount)
	assert.Equal(t, 612.0, info.First().Width)
	assert.Equal(t, 792.0, info.First().Height)
}

func TestConcurrentSignaturesOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	afe := f.pending(t)

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Sign(ctx, f.signers[0], afe.ID, signInput()); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)

	got, err := f.svc.Get(ctx, f.admin, afe.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPartiallySigned, got.Status)
	require.NoError(t, chain.CheckInvariants(got.Signers))
}

func TestAuditTrail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	afe := f.pending(t)
	_, err := f.svc.Sign(ctx, f.signers[0], afe.ID, signInput())
	require.NoError(t, err)

	page, err := f.svc.Audit(ctx, f.admin, AuditQuery{AuditFilter: model.AuditFilter{EntityType: model.EntityAFE, EntityID: afe.ID}})
	require.NoError(t, err)
	require.Equal(t, 3, page.Total)
	assert.Equal(t, model.ActionSigned, page.Items[0].Action)
	assert.Equal(t, model.ActionSignersAssigned, page.Items[1].Action)
	assert.Equal(t, model.ActionCreated, page.Items[2].Action)
	assert.Equal(t, 50, page.PageSize)

	_, err = f.svc.Audit(ctx, f.signers[0], AuditQuery{})
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	page, err = f.svc.Audit(ctx, f.admin, AuditQuery{PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, 100, page.PageSize)
}
