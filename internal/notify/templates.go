package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
)

const footer = `<p style="color: #666; font-size: 14px;">This is an automated message from the AFE Approval System.</p>`

const buttonStyle = `color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px; display: inline-block;`

type emailTemplate struct {
	subject string
	body    *template.Template
}

var templates = map[Kind]emailTemplate{
	KindSignerActivated: {
		subject: `Action Required: AFE "%s" Awaiting Your Signature`,
		body: mustParse("activated", `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
<h2 style="color: #333;">AFE Awaiting Your Signature</h2>
<p>Hello,</p>
<p>The AFE <strong>"{{.AFEName}}"</strong> is ready for your review and signature.</p>
<p style="margin: 24px 0;"><a href="{{.Link}}" style="background-color: #0066cc; `+buttonStyle+`">Review and Sign</a></p>
`+footer+`
</div>`),
	},
	KindFullySigned: {
		subject: `AFE "%s" Has Been Fully Signed`,
		body: mustParse("signed", `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
<h2 style="color: #333;">AFE Fully Signed</h2>
<p>Hello,</p>
<p>The AFE <strong>"{{.AFEName}}"</strong> has been signed by all required parties.</p>
<p>The final signed document is now available for download.</p>
<p style="margin: 24px 0;"><a href="{{.Link}}" style="background-color: #28a745; `+buttonStyle+`">View Signed Document</a></p>
{{if .DownloadURL}}<p><a href="{{.DownloadURL}}">Download the signed PDF</a></p>{{end}}
`+footer+`
</div>`),
	},
	KindRejected: {
		subject: `AFE "%s" Has Been Rejected`,
		body: mustParse("rejected", `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
<h2 style="color: #d32f2f;">AFE Rejected</h2>
<p>Hello,</p>
<p>The AFE <strong>"{{.AFEName}}"</strong> has been rejected by {{if .RejectedBy}}{{.RejectedBy}}{{else}}a signer{{end}}.</p>
{{if .Reason}}<p><strong>Reason:</strong> {{.Reason}}</p>{{end}}
<p style="margin: 24px 0;"><a href="{{.Link}}" style="background-color: #666; `+buttonStyle+`">View Details</a></p>
`+footer+`
</div>`),
	},
	KindReminder: {
		subject: `Reminder: AFE "%s" Awaiting Your Signature`,
		body: mustParse("reminder", `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
<h2 style="color: #ff9800;">Reminder: Signature Required</h2>
<p>Hello{{if .SignerName}} {{.SignerName}}{{end}},</p>
<p>This is a reminder that the AFE <strong>"{{.AFEName}}"</strong> is still awaiting your signature.</p>
<p style="margin: 24px 0;"><a href="{{.Link}}" style="background-color: #0066cc; `+buttonStyle+`">Review and Sign</a></p>
`+footer+`
</div>`),
	},
}

func mustParse(name, text string) *template.Template {
	return template.Must(template.New(name).Parse(text))
}

// Rendered is a message ready for a mailer.
type Rendered struct {
	Subject string
	HTML    string
}

// Renderer fills templates with links rooted at the web app URL.
type Renderer struct {
	appURL string
}

// NewRenderer constructs a Renderer.
func NewRenderer(appURL string) *Renderer {
	return &Renderer{appURL: strings.TrimRight(appURL, "/")}
}

// Link returns the document page URL.
func (r *Renderer) Link(afeID string) string {
	return fmt.Sprintf("%s/afe/%s", r.appURL, afeID)
}

// Render produces the subject and HTML body for msg.
func (r *Renderer) Render(msg Message) (Rendered, error) {
	tmpl, ok := templates[msg.Kind]
	if !ok {
		return Rendered{}, fmt.Errorf("unknown notification kind %q", msg.Kind)
	}
	view := struct {
		Data
		Link string
	}{Data: msg.Data, Link: r.Link(msg.Data.AFEID)}
	var buf bytes.Buffer
	if err := tmpl.body.Execute(&buf, view); err != nil {
		return Rendered{}, fmt.Errorf("render %s: %w", msg.Kind, err)
	}
	return Rendered{
		Subject: fmt.Sprintf(tmpl.subject, msg.Data.AFEName),
		HTML:    buf.String(),
	}, nil
}
