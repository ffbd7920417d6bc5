package rewrite

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rewriteHTML(t *testing.T, body string, rc Context) (string, *goquery.Document) {
	t.Helper()
	b, target := testConfig()
	out, err := NewHTMLRewriter(b, target).Rewrite(body, rc)
	require.NoError(t, err)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(out))
	require.NoError(t, err)
	return out, doc
}

func TestHTMLRewriterScenario(t *testing.T) {
	rc := NewContext("https", "agency.example.com")
	out, doc := rewriteHTML(t, `<title>RateHawk</title><a href="/booking">Book</a>`, rc)

	assert.Contains(t, out, `<title>Your Travel Agency - Travel Booking</title>`)
	assert.Contains(t, out, `<a href="https://agency.example.com/booking">Book</a>`)
	assert.Equal(t, 1, doc.Find("head style").Length())
	assert.Equal(t, 1, doc.Find("head script").Length())
}

func TestHTMLRewriterLogos(t *testing.T) {
	rc := NewContext("https", "agency.example.com")
	_, doc := rewriteHTML(t, `<body>
<img id="a" src="/img/RateHawk-logo.svg">
<img id="b" src="/img/header.png" alt="RateHawk">
<img id="c" src="/img/header.png" alt="ratehawk travel">
<img id="d" src="/img/hotel.jpg" alt="Pool">
</body>`, rc)

	for _, id := range []string{"#a", "#b", "#c"} {
		img := doc.Find(id)
		assert.Equal(t, "https://agency.example.com/static/logo.png", img.AttrOr("src", ""), id)
		assert.Equal(t, "Your Travel Agency", img.AttrOr("alt", ""), id)
	}
	assert.Equal(t, "https://agency.example.com/img/hotel.jpg", doc.Find("#d").AttrOr("src", ""))
	assert.Equal(t, "Pool", doc.Find("#d").AttrOr("alt", ""))
}

func TestHTMLRewriterBrandText(t *testing.T) {
	rc := NewContext("https", "agency.example.com")
	_, doc := rewriteHTML(t, `<body>
<p id="p">Welcome to RateHawk. RATEHAWK deals, ratehawk prices.</p>
<div id="d"><span>Powered by</span> Ratehawk <b>today</b></div>
</body>`, rc)

	assert.Equal(t,
		"Welcome to Your Travel Agency. Your Travel Agency deals, Your Travel Agency prices.",
		doc.Find("#p").Text())
	assert.Equal(t, "Powered by Your Travel Agency today", doc.Find("#d").Text())
	assert.Equal(t, 1, doc.Find("#d span").Length())
	assert.Equal(t, 1, doc.Find("#d b").Length())
}

func TestHTMLRewriterLinks(t *testing.T) {
	rc := NewContext("http", "localhost:3001")
	_, doc := rewriteHTML(t, `<html><head>
<link id="css" rel="stylesheet" href="/assets/app.css">
<script id="js" src="https://www.ratehawk.com/assets/app.js"></script>
<script id="ext" src="https://cdn.example.net/lib.js"></script>
</head><body>
<a id="abs" href="https://www.ratehawk.com/hotels">Hotels</a>
<a id="rel" href="rooms.html">Rooms</a>
<form id="f" action="/search"></form>
</body></html>`, rc)

	assert.Equal(t, "http://localhost:3001/assets/app.css", doc.Find("#css").AttrOr("href", ""))
	assert.Equal(t, "http://localhost:3001/assets/app.js", doc.Find("#js").AttrOr("src", ""))
	assert.Equal(t, "https://cdn.example.net/lib.js", doc.Find("#ext").AttrOr("src", ""))
	assert.Equal(t, "http://localhost:3001/hotels", doc.Find("#abs").AttrOr("href", ""))
	assert.Equal(t, "rooms.html", doc.Find("#rel").AttrOr("href", ""))
	assert.Equal(t, "http://localhost:3001/search", doc.Find("#f").AttrOr("action", ""))
}

func TestHTMLRewriterInjections(t *testing.T) {
	rc := NewContext("https", "agency.example.com")
	_, doc := rewriteHTML(t, `<html><head><title>x</title></head><body></body></html>`, rc)

	style := doc.Find("head style").Text()
	assert.Contains(t, style, "#588157 !important")
	assert.Contains(t, style, "#3a5a40 !important")
	assert.Contains(t, style, `[class*="ratehawk" i]`)
	assert.Contains(t, style, ".logo-ratehawk")
	assert.Contains(t, style, ".ratehawk-brand")
	assert.Contains(t, style, "position: fixed")
	assert.Contains(t, style, "height: 60px")
	assert.Contains(t, style, "padding-top: 60px")
	assert.Contains(t, style, `url("/static/logo.png")`)

	script := doc.Find("head script").Text()
	assert.Contains(t, script, `var proxyOrigin = "https://agency.example.com";`)
	assert.Contains(t, script, `var upstreamBase = "https://www.ratehawk.com";`)
	assert.Contains(t, script, "window.fetch = function")
	assert.Contains(t, script, "XMLHttpRequest.prototype.open = function")
	assert.Contains(t, script, "history.pushState = function")

	// style comes before the shim
	assert.Equal(t, "style", goquery.NodeName(doc.Find("head").Children().Eq(1)))
	assert.Equal(t, "script", goquery.NodeName(doc.Find("head").Children().Eq(2)))
}

func TestHTMLRewriterIdempotentBranding(t *testing.T) {
	b, target := testConfig()
	r := NewHTMLRewriter(b, target)
	rc := NewContext("https", "agency.example.com")

	in := `<html><head><title>RateHawk</title></head><body><h1>RateHawk hotels</h1><p>Book with ratehawk</p></body></html>`
	once, err := r.Rewrite(in, rc)
	require.NoError(t, err)
	twice, err := r.Rewrite(once, rc)
	require.NoError(t, err)

	first, err := goquery.NewDocumentFromReader(strings.NewReader(once))
	require.NoError(t, err)
	second, err := goquery.NewDocumentFromReader(strings.NewReader(twice))
	require.NoError(t, err)

	assert.Equal(t, first.Find("title").Text(), second.Find("title").Text())
	assert.Equal(t, first.Find("body").Text(), second.Find("body").Text())
	assert.Equal(t, "Your Travel Agency hotels", second.Find("h1").Text())
	assert.Equal(t, "Book with Your Travel Agency", second.Find("p").Text())

	assert.Equal(t, strings.Count(once, b.SiteName), strings.Count(twice, b.SiteName))
	assert.Equal(t, 1, second.Find("head style").Length())
	assert.Equal(t, 1, second.Find("head script").Length())
	assert.Equal(t, first.Find("head style").Text(), second.Find("head style").Text())
	assert.Equal(t, first.Find("head script").Text(), second.Find("head script").Text())
	assert.Contains(t, second.Find("head style").Text(), ".logo-ratehawk")
	assert.Contains(t, second.Find("head script").Text(), `var upstreamDomain = "ratehawk.com";`)
}
