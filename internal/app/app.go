// Package app wires configuration into the stores, notification sinks and
// workflow service shared by the server and worker binaries.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/afesign/internal/audit"
	"github.com/dharsanguruparan/afesign/internal/config"
	"github.com/dharsanguruparan/afesign/internal/database"
	"github.com/dharsanguruparan/afesign/internal/notify"
	pdfutil "github.com/dharsanguruparan/afesign/internal/pdf"
	"github.com/dharsanguruparan/afesign/internal/queue"
	"github.com/dharsanguruparan/afesign/internal/repository"
	"github.com/dharsanguruparan/afesign/internal/s3storage"
	"github.com/dharsanguruparan/afesign/internal/signing"
	"github.com/dharsanguruparan/afesign/internal/storage"
	"github.com/dharsanguruparan/afesign/internal/workflow"
)

var (
	_ workflow.Store     = (*repository.Repository)(nil)
	_ workflow.Store     = (*storage.MemoryStore)(nil)
	_ workflow.Blobs     = (*s3storage.Storage)(nil)
	_ workflow.Presigner = (*s3storage.Storage)(nil)
	_ workflow.Blobs     = (*storage.MemoryBlobs)(nil)
	_ notify.Sink        = (*queue.Client)(nil)
	_ notify.Sink        = (*notify.Dispatcher)(nil)
)

// App holds the long-lived dependencies of a process.
type App struct {
	Config   *config.Config
	Log      *zap.Logger
	Store    workflow.Store
	Blobs    workflow.Blobs
	Service  *workflow.Service
	Links    *signing.Signer
	Delivery *notify.Delivery
	// Dispatcher delivers notifications in-process when no queue is
	// configured. It is nil otherwise.
	Dispatcher *notify.Dispatcher

	closers []func()
}

// Build connects to the configured backends. Without a database URL the
// stores live in memory; without Redis notifications go through an
// in-process dispatcher.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log, Links: signing.NewSigner(cfg.SigningSecret)}

	if cfg.UsesDatabase() {
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		if err := database.EnsureSchema(ctx, pool); err != nil {
			a.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		a.Store = repository.New(pool)
	} else {
		log.Warn("no database configured, using in-memory storage")
		a.Store = storage.NewMemoryStore()
	}

	if cfg.UsesS3() {
		blobs, err := s3storage.New(cfg)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init storage: %w", err)
		}
		if err := blobs.EnsureBuckets(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("ensure buckets: %w", err)
		}
		a.Blobs = blobs
	} else {
		log.Warn("no object store configured, keeping PDFs in memory")
		a.Blobs = storage.NewMemoryBlobs()
	}

	var mailer notify.Mailer
	if cfg.MailEnabled() {
		mailer = notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		})
	} else {
		log.Warn("smtp not configured, notifications are logged only")
		mailer = notify.NewLogMailer(log)
	}
	a.Delivery = notify.NewDelivery(notify.NewRenderer(cfg.AppURL), mailer, a.Blobs, log)

	var (
		sink      notify.Sink
		finalizer workflow.FinalizeScheduler
	)
	if cfg.UsesQueue() {
		client := queue.NewClient(asynq.NewClient(RedisOpt(cfg)))
		a.closers = append(a.closers, func() { _ = client.Close() })
		sink, finalizer = client, client
	} else {
		a.Dispatcher = notify.NewDispatcher(a.Delivery, cfg.WorkerConcurrency, log)
		sink = a.Dispatcher
	}

	a.Service = workflow.New(workflow.Options{
		Store:        a.Store,
		Blobs:        a.Blobs,
		Annotator:    pdfutil.NewAnnotator(cfg.Location(), log),
		Notifier:     notify.NewNotifier(sink, log),
		Audit:        audit.NewRecorder(a.Store, log),
		Finalizer:    finalizer,
		Links:        a.Links,
		PublicURL:    cfg.PublicURL,
		LinkTTL:      cfg.SignedURLTTL,
		Distribution: cfg.DistributionList,
		MaxFileSize:  cfg.MaxFileSize,
		Logger:       log,
	})
	return a, nil
}

// RequireBackends reports an error unless the durable backends a separate
// worker process needs are configured.
func RequireBackends(cfg *config.Config) error {
	var missing []error
	if !cfg.UsesDatabase() {
		missing = append(missing, errors.New("database url is required"))
	}
	if !cfg.UsesQueue() {
		missing = append(missing, errors.New("redis address is required"))
	}
	if !cfg.UsesS3() {
		missing = append(missing, errors.New("s3 endpoint is required"))
	}
	return errors.Join(missing...)
}

// RedisOpt returns the asynq connection settings.
func RedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
