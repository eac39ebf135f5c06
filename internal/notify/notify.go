// Package notify renders and delivers workflow notifications. Delivery is
// fire-and-forget from the workflow's point of view: a Sink accepts a Message
// and failures past that point are only logged.
package notify

import (
	"context"
	"errors"
	"fmt"
)

// Kind selects the template.
type Kind string

const (
	KindSignerActivated Kind = "SIGNER_ACTIVATED"
	KindFullySigned     Kind = "AFE_FULLY_SIGNED"
	KindRejected        Kind = "AFE_REJECTED"
	KindReminder        Kind = "REMINDER"
)

// Valid reports whether k has a template.
func (k Kind) Valid() bool {
	_, ok := templates[k]
	return ok
}

// Data is the template input.
type Data struct {
	AFEID       string `json:"afeId"`
	AFEName     string `json:"afeName"`
	SignerName  string `json:"signerName,omitempty"`
	RejectedBy  string `json:"rejectedBy,omitempty"`
	Reason      string `json:"reason,omitempty"`
	DownloadURL string `json:"downloadUrl,omitempty"`
}

// Message is one email. Attachments travel by blob key and are resolved at
// delivery time so messages stay small enough to queue.
type Message struct {
	Kind           Kind   `json:"kind"`
	To             string `json:"to"`
	Data           Data   `json:"data"`
	AttachmentKey  string `json:"attachmentKey,omitempty"`
	AttachmentName string `json:"attachmentName,omitempty"`
}

// Validate checks the message is deliverable.
func (m Message) Validate() error {
	if !m.Kind.Valid() {
		return fmt.Errorf("unknown notification kind %q", m.Kind)
	}
	if m.To == "" {
		return errors.New("notification has no recipient")
	}
	return nil
}

// Sink accepts messages for delivery.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, msg Message) error

// Send calls f.
func (f SinkFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}
