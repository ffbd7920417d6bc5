package rewrite

import (
	"strings"

	"github.com/andesco/whitelabel/pkg/config"
)

// JSRewriter replaces hardcoded upstream references in scripts.
//
// This is plain substring substitution: any literal that happens to contain
// the upstream domain is rewritten too, including ones unrelated to URLs.
type JSRewriter struct {
	target config.Target
}

func NewJSRewriter(t config.Target) *JSRewriter {
	return &JSRewriter{target: t}
}

func (r *JSRewriter) Rewrite(body string, rc Context) string {
	// The base URL goes first: it contains the domain, and swapping the
	// domain alone would leave e.g. https://www.<host> behind.
	if r.target.BaseURL != "" {
		body = strings.ReplaceAll(body, r.target.BaseURL, rc.Base())
	}
	if r.target.Domain != "" {
		body = strings.ReplaceAll(body, r.target.Domain, rc.Host)
	}
	return body
}
