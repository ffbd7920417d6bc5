// Package rewrite re-brands upstream HTML, CSS and JavaScript bodies and
// points their URLs at the proxy. The rewriters are pure: they hold only the
// immutable configuration they were built with.
package rewrite

import (
	"strings"

	"github.com/andesco/whitelabel/pkg/config"
)

// Context is the caller-facing origin of one request.
type Context struct {
	Protocol string
	Host     string
}

// NewContext builds a Context, defaulting the protocol to http.
func NewContext(protocol, host string) Context {
	if protocol == "" {
		protocol = "http"
	}
	return Context{Protocol: protocol, Host: host}
}

// Base returns protocol://host.
func (rc Context) Base() string {
	return rc.Protocol + "://" + rc.Host
}

// Kind is the rewriter a content type is routed to.
type Kind int

const (
	KindNone Kind = iota
	KindHTML
	KindCSS
	KindJS
)

func (k Kind) String() string {
	switch k {
	case KindHTML:
		return "html"
	case KindCSS:
		return "css"
	case KindJS:
		return "js"
	default:
		return "passthrough"
	}
}

// Classify maps a Content-Type header value to a Kind. Matching is a
// case-sensitive substring test on the raw header value.
func Classify(contentType string) Kind {
	switch {
	case strings.Contains(contentType, "text/html"):
		return KindHTML
	case strings.Contains(contentType, "text/css"):
		return KindCSS
	case strings.Contains(contentType, "application/javascript"),
		strings.Contains(contentType, "text/javascript"):
		return KindJS
	default:
		return KindNone
	}
}

// URL applies the proxy's link rule: root-relative values are prefixed with
// the caller's origin, values mentioning the upstream domain get the first
// occurrence of the upstream base URL swapped for it, anything else is kept.
func URL(raw string, rc Context, target config.Target) string {
	switch {
	case strings.HasPrefix(raw, "/"):
		return rc.Base() + raw
	case target.Domain != "" && strings.Contains(raw, target.Domain):
		return strings.Replace(raw, target.BaseURL, rc.Base(), 1)
	default:
		return raw
	}
}
