package notify

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// Attachment is a file attached to an email.
type Attachment struct {
	Name string
	Data []byte
}

// Mailer sends rendered email.
type Mailer interface {
	Mail(ctx context.Context, to string, msg Rendered, attachments ...Attachment) error
}

// SMTPConfig holds the SMTP relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer delivers through an SMTP relay.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPMailer constructs an SMTPMailer.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

// Mail sends one message. gomail dials per call; ctx is only checked up front.
func (m *SMTPMailer) Mail(ctx context.Context, to string, msg Rendered, attachments ...Attachment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	email := gomail.NewMessage()
	email.SetHeader("From", m.from)
	email.SetHeader("To", to)
	email.SetHeader("Subject", msg.Subject)
	email.SetBody("text/html", msg.HTML)
	for _, a := range attachments {
		data := a.Data
		email.Attach(a.Name,
			gomail.SetHeader(map[string][]string{"Content-Type": {"application/pdf"}}),
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(data)
				return err
			}))
	}
	if err := m.dialer.DialAndSend(email); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}

// LogMailer logs instead of sending. Used when SMTP is not configured.
type LogMailer struct {
	log *zap.Logger
}

// NewLogMailer constructs a LogMailer.
func NewLogMailer(log *zap.Logger) *LogMailer {
	return &LogMailer{log: log}
}

// Mail logs the message.
func (m *LogMailer) Mail(ctx context.Context, to string, msg Rendered, attachments ...Attachment) error {
	names := make([]string, len(attachments))
	for i, a := range attachments {
		names[i] = a.Name
	}
	m.log.Info("would send email",
		zap.String("to", to),
		zap.String("subject", msg.Subject),
		zap.Strings("attachments", names))
	return nil
}
