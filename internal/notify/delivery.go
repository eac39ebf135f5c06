package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// BlobReader resolves attachment keys.
type BlobReader interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Delivery renders a message, resolves its attachment and hands it to a
// Mailer. It is the terminal stage of every Sink.
type Delivery struct {
	renderer *Renderer
	mailer   Mailer
	blobs    BlobReader
	log      *zap.Logger
}

// NewDelivery constructs a Delivery. blobs may be nil when no attachments are
// expected.
func NewDelivery(renderer *Renderer, mailer Mailer, blobs BlobReader, log *zap.Logger) *Delivery {
	return &Delivery{renderer: renderer, mailer: mailer, blobs: blobs, log: log}
}

// Deliver sends msg. A missing attachment downgrades to a plain email.
func (d *Delivery) Deliver(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	rendered, err := d.renderer.Render(msg)
	if err != nil {
		return err
	}
	var attachments []Attachment
	if msg.AttachmentKey != "" && d.blobs != nil {
		data, err := d.blobs.Get(ctx, msg.AttachmentKey)
		if err != nil {
			d.log.Warn("attachment unavailable, sending without it",
				zap.String("afe_id", msg.Data.AFEID),
				zap.String("key", msg.AttachmentKey),
				zap.Error(err))
		} else {
			name := msg.AttachmentName
			if name == "" {
				name = "document.pdf"
			}
			attachments = append(attachments, Attachment{Name: name, Data: data})
		}
	}
	if err := d.mailer.Mail(ctx, msg.To, rendered, attachments...); err != nil {
		return fmt.Errorf("deliver %s: %w", msg.Kind, err)
	}
	d.log.Info("notification sent",
		zap.String("kind", string(msg.Kind)),
		zap.String("to", msg.To),
		zap.Int("attachments", len(attachments)))
	return nil
}
