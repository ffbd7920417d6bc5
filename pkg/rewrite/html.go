package rewrite

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/andesco/whitelabel/pkg/config"
)

// injectedAttr marks the style and script elements the rewriter adds, so a
// page that is rewritten again keeps exactly one intact copy of each.
const injectedAttr = "data-whitelabel"

// HTMLRewriter re-brands whole HTML documents.
type HTMLRewriter struct {
	branding config.Branding
	target   config.Target
	brandRe  *regexp.Regexp
	steps    []htmlStep
}

// htmlStep transforms the parsed document in place. Steps run in the order
// they are listed in NewHTMLRewriter.
type htmlStep func(doc *goquery.Document, rc Context)

func NewHTMLRewriter(b config.Branding, t config.Target) *HTMLRewriter {
	r := &HTMLRewriter{
		branding: b,
		target:   t,
		brandRe:  regexp.MustCompile("(?i)" + regexp.QuoteMeta(t.Brand)),
	}
	r.steps = []htmlStep{
		r.retitle,
		r.swapLogos,
		r.replaceBrandText,
		r.injectStyle,
		r.rewriteLinks,
		r.injectShim,
	}
	return r
}

// Rewrite parses body, applies every step and serializes the result.
func (r *HTMLRewriter) Rewrite(body string, rc Context) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	for _, step := range r.steps {
		step(doc, rc)
	}

	out, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return out, nil
}

func (r *HTMLRewriter) retitle(doc *goquery.Document, _ Context) {
	doc.Find("title").SetText(r.branding.SiteName + " - Travel Booking")
}

func (r *HTMLRewriter) swapLogos(doc *goquery.Document, _ Context) {
	lower := strings.ToLower(r.target.Brand)
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		src := strings.ToLower(img.AttrOr("src", ""))
		alt := img.AttrOr("alt", "")
		if strings.Contains(src, lower) || strings.Contains(alt, r.target.Brand) || strings.Contains(alt, lower) {
			img.SetAttr("src", r.branding.LogoURL)
			img.SetAttr("alt", r.branding.SiteName)
		}
	})
}

func (r *HTMLRewriter) replaceBrandText(doc *goquery.Document, _ Context) {
	doc.Find("*").Contents().Each(func(_ int, s *goquery.Selection) {
		n := s.Get(0)
		if n.Type != html.TextNode || injected(n.Parent) || !r.brandRe.MatchString(n.Data) {
			return
		}
		n.Data = r.brandRe.ReplaceAllLiteralString(n.Data, r.branding.SiteName)
	})
}

func (r *HTMLRewriter) injectStyle(doc *goquery.Document, _ Context) {
	if doc.Find("head style[" + injectedAttr + "]").Length() > 0 {
		return
	}
	doc.Find("head").AppendHtml(styleBlock(r.branding, r.target.Brand))
}

func (r *HTMLRewriter) rewriteLinks(doc *goquery.Document, rc Context) {
	rewriteAttr(doc.Find("a[href]"), "href", rc, r.target)
	rewriteAttr(doc.Find("img[src], script[src]"), "src", rc, r.target)
	rewriteAttr(doc.Find("link[href]"), "href", rc, r.target)
	rewriteAttr(doc.Find("form[action]"), "action", rc, r.target)
}

func (r *HTMLRewriter) injectShim(doc *goquery.Document, rc Context) {
	if doc.Find("head script[" + injectedAttr + "]").Length() > 0 {
		return
	}
	doc.Find("head").AppendHtml(shimBlock(rc, r.target))
}

func injected(n *html.Node) bool {
	if n == nil {
		return false
	}
	for _, a := range n.Attr {
		if a.Key == injectedAttr {
			return true
		}
	}
	return false
}

func rewriteAttr(sel *goquery.Selection, attr string, rc Context, t config.Target) {
	sel.Each(func(_ int, s *goquery.Selection) {
		v, ok := s.Attr(attr)
		if !ok {
			return
		}
		if nv := URL(v, rc, t); nv != v {
			s.SetAttr(attr, nv)
		}
	})
}
