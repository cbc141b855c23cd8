package tracking

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Marker is the attribute carried by the open-tracking pixel.
// Inject looks for it to stay idempotent.
const Marker = `data-lp-track="open"`

// Route prefixes served by the public tracking endpoints
const (
	OpenPath  = "/track/open"
	ClickPath = "/track/click"
)

// Injector embeds open-tracking pixels and click-redirect links into HTML
type Injector struct {
	baseURL string
}

// NewInjector creates an injector producing absolute URLs under baseURL
func NewInjector(baseURL string) *Injector {
	return &Injector{baseURL: strings.TrimRight(baseURL, "/")}
}

// BaseURL returns the normalized base URL
func (i *Injector) BaseURL() string {
	return i.baseURL
}

// OpenURL returns the pixel URL for a newsletter/recipient pair
func (i *Injector) OpenURL(newsletterID, recipientID string) string {
	return fmt.Sprintf("%s%s/%s/%s", i.baseURL, OpenPath,
		url.PathEscape(newsletterID), url.PathEscape(recipientID))
}

// ClickURL returns a redirect URL that records a click and forwards to destination
func (i *Injector) ClickURL(newsletterID, recipientID, destination string) string {
	return fmt.Sprintf("%s%s/%s/%s?url=%s", i.baseURL, ClickPath,
		url.PathEscape(newsletterID), url.PathEscape(recipientID), url.QueryEscape(destination))
}

// Pixel returns the invisible 1x1 image tag for a newsletter/recipient pair
func (i *Injector) Pixel(newsletterID, recipientID string) string {
	return fmt.Sprintf(`<img src="%s" width="1" height="1" alt="" style="display:none;" %s />`,
		i.OpenURL(newsletterID, recipientID), Marker)
}

// Inject adds the open-tracking pixel to html. The pixel goes before the
// last </body> when present, otherwise it is appended. HTML that already
// carries the marker is returned unchanged.
func (i *Injector) Inject(html, newsletterID, recipientID string) string {
	if HasPixel(html) {
		return html
	}

	pixel := i.Pixel(newsletterID, recipientID)
	if idx := lastIndexFold(html, "</body>"); idx >= 0 {
		return html[:idx] + pixel + html[idx:]
	}
	return html + pixel
}

// HasPixel reports whether html already contains a tracking pixel
func HasPixel(html string) bool {
	return strings.Contains(html, Marker)
}

var hrefPattern = regexp.MustCompile(`(?i)href\s*=\s*"(https?://[^"]+)"`)

// RewriteLinks replaces absolute http(s) links with click-tracking URLs.
// Links already pointing at this injector's base URL (tracking and
// unsubscribe links) are left alone, so the rewrite is idempotent.
func (i *Injector) RewriteLinks(html, newsletterID, recipientID string) string {
	return hrefPattern.ReplaceAllStringFunc(html, func(match string) string {
		sub := hrefPattern.FindStringSubmatch(match)
		dest := sub[1]
		if i.baseURL != "" && strings.HasPrefix(dest, i.baseURL+"/") {
			return match
		}
		// Attribute values are HTML-escaped; the redirect needs the raw URL
		raw := strings.ReplaceAll(dest, "&amp;", "&")
		return `href="` + i.ClickURL(newsletterID, recipientID, raw) + `"`
	})
}

func lastIndexFold(s, substr string) int {
	for i := len(s) - len(substr); i >= 0; i-- {
		if strings.EqualFold(s[i:i+len(substr)], substr) {
			return i
		}
	}
	return -1
}
