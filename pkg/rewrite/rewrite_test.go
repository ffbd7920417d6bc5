package rewrite

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/andesco/whitelabel/pkg/config"
)

func testConfig() (config.Branding, config.Target) {
	cfg := config.Default()
	return cfg.Branding, cfg.Target
}

func TestClassify(t *testing.T) {
	tests := []struct {
		contentType string
		want        Kind
	}{
		{"text/html; charset=utf-8", KindHTML},
		{"text/css", KindCSS},
		{"application/javascript", KindJS},
		{"text/javascript; charset=UTF-8", KindJS},
		{"image/png", KindNone},
		{"application/json", KindNone},
		{"", KindNone},
		// matching is case-sensitive on the raw header value
		{"Text/HTML", KindNone},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.contentType), tt.contentType)
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "html", KindHTML.String())
	assert.Equal(t, "css", KindCSS.String())
	assert.Equal(t, "js", KindJS.String())
	assert.Equal(t, "passthrough", KindNone.String())
}

func TestNewContextDefaultsProtocol(t *testing.T) {
	rc := NewContext("", "agency.example.com")
	assert.Equal(t, "http://agency.example.com", rc.Base())
}

func TestURL(t *testing.T) {
	_, target := testConfig()
	rc := NewContext("https", "agency.example.com")

	tests := []struct {
		in, want string
	}{
		{"/booking", "https://agency.example.com/booking"},
		{"/hotels/search?city=Rio", "https://agency.example.com/hotels/search?city=Rio"},
		{"https://www.ratehawk.com/hotel/1", "https://agency.example.com/hotel/1"},
		{"https://cdn.example.net/app.js", "https://cdn.example.net/app.js"},
		{"#top", "#top"},
		{"mailto:help@example.org", "mailto:help@example.org"},
		// only the base URL is swapped; other hosts on the domain are kept
		{"https://static.ratehawk.com/a.png", "https://static.ratehawk.com/a.png"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, URL(tt.in, rc, target), tt.in)
	}
}

func TestURLRootRelativeRoundTrip(t *testing.T) {
	_, target := testConfig()
	rc := NewContext("https", "my-agency.com")

	for _, path := range []string{"/", "/a", "/hotels/42?x=1#rooms", "/static/logo.png"} {
		out := URL(path, rc, target)
		assert.Equal(t, rc.Base()+path, out)
		assert.Equal(t, path, strings.TrimPrefix(out, rc.Base()))
	}
}

func TestCSSRewriterColors(t *testing.T) {
	b, target := testConfig()
	r := NewCSSRewriter(b, target)

	assert.Equal(t, ".a{color:#588157}", r.Rewrite(".a{color:#1976d2}"))
	assert.Equal(t, ".a{color:#588157}", r.Rewrite(".a{color:#1976D2}"))
	assert.Equal(t, ".b{background:#3a5a40}", r.Rewrite(".b{background:#1565c0}"))
	assert.Equal(t, ".c{color:#123456}", r.Rewrite(".c{color:#123456}"))
	assert.Equal(t, ".d{color:#fff}", r.Rewrite(".d{color:#fff}"))
}

func TestCSSRewriterURLs(t *testing.T) {
	b, target := testConfig()
	r := NewCSSRewriter(b, target)

	tests := []struct {
		in, want string
	}{
		{`.a{background:url(/img/bg.png)}`, `.a{background:url('/img/bg.png')}`},
		{`.a{background:url("/img/bg.png")}`, `.a{background:url('/img/bg.png')}`},
		{`.a{background:url( '/img/bg.png' )}`, `.a{background:url('/img/bg.png')}`},
		{`.a{background:url("https://www.ratehawk.com/img/bg.png")}`, `.a{background:url('/img/bg.png')}`},
		{`.a{background:url(https://cdn.example.net/bg.png)}`, `.a{background:url(https://cdn.example.net/bg.png)}`},
		{`.a{background:url(data:image/png;base64,AAAA)}`, `.a{background:url(data:image/png;base64,AAAA)}`},
		{`@font-face{src:url(fonts/a.woff2)}`, `@font-face{src:url(fonts/a.woff2)}`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.Rewrite(tt.in), tt.in)
	}
}

func TestJSRewriter(t *testing.T) {
	_, target := testConfig()
	r := NewJSRewriter(target)
	rc := NewContext("https", "my-agency.com")

	assert.Equal(t, `fetch("https://my-agency.com/api")`, r.Rewrite(`fetch("https://www.ratehawk.com/api")`, rc))
	assert.Equal(t,
		`var a="https://my-agency.com/x",b="https://my-agency.com/y";`,
		r.Rewrite(`var a="https://www.ratehawk.com/x",b="https://www.ratehawk.com/y";`, rc))
	assert.Equal(t, `var host="my-agency.com";`, r.Rewrite(`var host="ratehawk.com";`, rc))
	// substring substitution also hits unrelated literals
	assert.Equal(t, `var mail="help@my-agency.com";`, r.Rewrite(`var mail="help@ratehawk.com";`, rc))
	assert.Equal(t, `console.log("untouched")`, r.Rewrite(`console.log("untouched")`, rc))
}
