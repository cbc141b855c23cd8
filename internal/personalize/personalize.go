// Package personalize renders a newsletter template for a single recipient.
package personalize

import (
	"fmt"
	"html"
	"net/url"
	"strings"

	"github.com/foxzi/letterpress/internal/newsletter"
)

// Placeholders recognised in newsletter templates
const (
	NamePlaceholder  = "{{name}}"
	EmailPlaceholder = "{{email}}"
)

// DefaultName is substituted when a recipient has no name
const DefaultName = "there"

const footerTemplate = `<hr style="margin: 30px 0; border: none; border-top: 1px solid #eee;">` +
	`<p style="font-size: 12px; color: #666; text-align: center;">` +
	`Don't want to receive these emails? <a href="%s" style="color: #666;">Unsubscribe here</a>` +
	`</p>`

// Personalizer substitutes recipient placeholders and appends the unsubscribe footer
type Personalizer struct {
	unsubscribeURL string
}

// New creates a personalizer whose footer links to appURL + "/unsubscribe"
func New(appURL string) *Personalizer {
	return &Personalizer{
		unsubscribeURL: strings.TrimRight(appURL, "/") + "/unsubscribe",
	}
}

// UnsubscribeLink returns the unsubscribe URL for an email address
func (p *Personalizer) UnsubscribeLink(email string) string {
	return p.unsubscribeURL + "?email=" + url.QueryEscape(email)
}

// Personalize returns template with every placeholder replaced and the
// unsubscribe footer appended. The name and email are HTML-escaped.
func (p *Personalizer) Personalize(template string, r newsletter.Recipient) string {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		name = DefaultName
	}

	replacer := strings.NewReplacer(
		NamePlaceholder, html.EscapeString(name),
		EmailPlaceholder, html.EscapeString(r.Email),
	)

	var b strings.Builder
	b.Grow(len(template) + len(footerTemplate) + len(p.unsubscribeURL) + len(r.Email)*3)
	replacer.WriteString(&b, template)
	fmt.Fprintf(&b, footerTemplate, html.EscapeString(p.UnsubscribeLink(r.Email)))
	return b.String()
}
