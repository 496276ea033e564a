package mailer

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"text/template"

	"github.com/bgbm/dnastore/internal/settings"
)

var (
	verificationTemplate = template.Must(template.New("verification").Parse(`Hello {{.Username}},

Thank you for registering with {{.SiteName}}.
Please confirm your email address by opening the link below:

{{.Link}}

The link is valid for {{.Validity}}. If you did not register, ignore this email.
`))
	resetTemplate = template.Must(template.New("reset").Parse(`Hello {{.Username}},

A password reset was requested for your {{.SiteName}} account.
Open the link below to choose a new password:

{{.Link}}

The link is valid for {{.Validity}}. If you did not request a reset, ignore this email.
`))
)

// Composer renders account emails. SiteName, FrontendURL and From are
// fallbacks; DB settings override them at render time.
type Composer struct {
	SiteName    string
	FrontendURL string
	From        string
}

type templateData struct {
	Username string
	SiteName string
	Link     string
	Validity string
}

// Verification renders the email-verification message.
func (c Composer) Verification(to, username, token, validity string) (Message, error) {
	link := c.link("verify-email", url.Values{"token": {token}})
	return c.render(verificationTemplate, to, "Verify your email address", templateData{
		Username: username,
		Link:     link,
		Validity: validity,
	})
}

// PasswordReset renders the password-reset message.
func (c Composer) PasswordReset(to, username, uid, token, validity string) (Message, error) {
	link := c.link("reset-password", url.Values{"uid": {uid}, "token": {token}})
	return c.render(resetTemplate, to, "Reset your password", templateData{
		Username: username,
		Link:     link,
		Validity: validity,
	})
}

func (c Composer) link(path string, query url.Values) string {
	base := strings.TrimRight(settings.String(settings.FrontendURLKey, c.FrontendURL), "/")
	return base + "/" + path + "?" + query.Encode()
}

func (c Composer) render(tmpl *template.Template, to, subject string, data templateData) (Message, error) {
	data.SiteName = settings.String(settings.SiteNameKey, c.SiteName)
	var body bytes.Buffer
	if errExec := tmpl.Execute(&body, data); errExec != nil {
		return Message{}, fmt.Errorf("mailer: render %s: %w", tmpl.Name(), errExec)
	}
	return Message{
		From:    settings.String(settings.MailFromKey, c.From),
		To:      to,
		Subject: fmt.Sprintf("[%s] %s", data.SiteName, subject),
		Body:    body.String(),
	}, nil
}
