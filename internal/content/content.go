// Package content turns authored newsletter content into sendable HTML.
package content

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// ExcerptLength is the number of characters kept in an excerpt
const ExcerptLength = 200

var (
	md = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
	)

	policy      *bluemonday.Policy
	plainPolicy = bluemonday.StrictPolicy()
	policyOnce  sync.Once
)

func htmlPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.UGCPolicy()
		policy.AllowAttrs("align", "width", "height").OnElements("table", "td", "th", "img")
		policy.AllowAttrs("target").Matching(bluemonday.SpaceSeparatedTokens).OnElements("a")
	})
	return policy
}

// RenderMarkdown converts markdown to HTML
func RenderMarkdown(source string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return buf.String(), nil
}

// Sanitize strips scripts, event handlers and other unsafe markup from HTML
func Sanitize(html string) string {
	return htmlPolicy().Sanitize(html)
}

// PlainText strips all markup from HTML
func PlainText(html string) string {
	return strings.Join(strings.Fields(plainPolicy.Sanitize(html)), " ")
}

// Excerpt returns the first ExcerptLength characters of s followed by "..."
// when s is longer
func Excerpt(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= ExcerptLength {
		return s
	}
	return string([]rune(s)[:ExcerptLength]) + "..."
}

// Build returns the sanitized HTML body for a newsletter. Authored HTML wins;
// otherwise the markdown source is rendered.
func Build(markdown, html string) (string, error) {
	if strings.TrimSpace(html) != "" {
		return Sanitize(html), nil
	}
	if strings.TrimSpace(markdown) == "" {
		return "", fmt.Errorf("content or html_content is required")
	}

	rendered, err := RenderMarkdown(markdown)
	if err != nil {
		return "", err
	}
	return Sanitize(rendered), nil
}
