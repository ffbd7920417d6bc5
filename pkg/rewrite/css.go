package rewrite

import (
	"regexp"
	"strings"

	"github.com/andesco/whitelabel/pkg/config"
)

var (
	cssHexColor = regexp.MustCompile(`#[0-9a-fA-F]{6}`)
	cssURL      = regexp.MustCompile(`url\(\s*['"]?([^'")]+?)['"]?\s*\)`)
)

// CSSRewriter swaps known upstream brand colors and normalizes url(...)
// references in stylesheets.
type CSSRewriter struct {
	branding config.Branding
	target   config.Target
}

func NewCSSRewriter(b config.Branding, t config.Target) *CSSRewriter {
	return &CSSRewriter{branding: b, target: t}
}

func (r *CSSRewriter) Rewrite(body string) string {
	body = cssHexColor.ReplaceAllStringFunc(body, func(color string) string {
		switch r.target.BrandColors[strings.ToLower(color)] {
		case config.RolePrimary:
			return r.branding.PrimaryColor
		case config.RoleSecondary:
			return r.branding.SecondaryColor
		default:
			return color
		}
	})

	return cssURL.ReplaceAllStringFunc(body, func(match string) string {
		ref := cssURL.FindStringSubmatch(match)[1]
		switch {
		case strings.HasPrefix(ref, "/"):
			return "url('" + ref + "')"
		case r.target.Domain != "" && strings.Contains(ref, r.target.Domain):
			return "url('" + strings.Replace(ref, r.target.BaseURL, "", 1) + "')"
		default:
			return match
		}
	})
}
