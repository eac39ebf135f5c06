// Package worker holds the asynq handlers run by cmd/worker.
package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/afesign/internal/apperr"
	"github.com/dharsanguruparan/afesign/internal/notify"
	"github.com/dharsanguruparan/afesign/internal/queue"
)

// Deliverer sends one notification.
type Deliverer interface {
	Deliver(ctx context.Context, msg notify.Message) error
}

// Finalizer generates the final PDF of a document.
type Finalizer interface {
	Finalize(ctx context.Context, afeID string) (string, error)
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	delivery  Deliverer
	finalizer Finalizer
	log       *zap.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(delivery Deliverer, finalizer Finalizer, log *zap.Logger) *Processor {
	return &Processor{delivery: delivery, finalizer: finalizer, log: log.Named("worker")}
}

// Handler registers the task handlers.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.SendNotificationTask, p.handleNotification)
	mux.HandleFunc(queue.FinalizeTask, p.handleFinalize)
	return mux
}

func (p *Processor) handleNotification(ctx context.Context, task *asynq.Task) error {
	msg, err := queue.DecodeNotification(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if err := p.delivery.Deliver(ctx, msg); err != nil {
		p.log.Warn("notification delivery failed",
			zap.String("kind", string(msg.Kind)),
			zap.String("to", msg.To),
			zap.Error(err))
		return err
	}
	return nil
}

func (p *Processor) handleFinalize(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.DecodeFinalize(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	key, err := p.finalizer.Finalize(ctx, payload.AFEID)
	if err != nil {
		p.log.Warn("finalize failed", zap.String("afe_id", payload.AFEID), zap.Error(err))
		// Missing or non-final documents will never succeed.
		switch apperr.KindOf(err) {
		case apperr.KindNotFound, apperr.KindState:
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	p.log.Info("final pdf ready", zap.String("afe_id", payload.AFEID), zap.String("key", key))
	return nil
}
