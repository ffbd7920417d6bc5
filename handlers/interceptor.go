package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/andesco/whitelabel/pkg/config"
	"github.com/andesco/whitelabel/pkg/metrics"
	"github.com/andesco/whitelabel/pkg/rewrite"
	"github.com/andesco/whitelabel/pkg/ruleset"
)

// Headers that would stop the re-served page from running injected script or
// being framed.
var strippedHeaders = []string{
	fiber.HeaderXFrameOptions,
	fiber.HeaderContentSecurityPolicy,
	fiber.HeaderXContentTypeOptions,
}

// Interceptor turns an upstream response into the client response, buffering
// and rewriting HTML, CSS and JavaScript and streaming everything else.
type Interceptor struct {
	target  config.Target
	html    *rewrite.HTMLRewriter
	css     *rewrite.CSSRewriter
	js      *rewrite.JSRewriter
	rules   ruleset.RuleSet
	maxBody int64
	metrics *metrics.Metrics
}

func NewInterceptor(cfg *config.Config, rules ruleset.RuleSet, m *metrics.Metrics) *Interceptor {
	return &Interceptor{
		target:  cfg.Target,
		html:    rewrite.NewHTMLRewriter(cfg.Branding, cfg.Target),
		css:     rewrite.NewCSSRewriter(cfg.Branding, cfg.Target),
		js:      rewrite.NewJSRewriter(cfg.Target),
		rules:   rules,
		maxBody: cfg.Proxy.MaxBodyBytes,
		metrics: m,
	}
}

// Intercept writes up to c's response. It takes ownership of up and releases
// it once the body has been consumed.
func (i *Interceptor) Intercept(c *fiber.Ctx, up *fasthttp.Response, rc rewrite.Context) error {
	// A missing Content-Type stays missing rather than becoming text/plain.
	up.Header.SetNoDefaultContentType(true)
	c.Response().Header.SetNoDefaultContentType(true)

	rule, hasRule := i.rules.Match(rc.Host, c.Path())
	kind := rewrite.Classify(string(up.Header.Peek(fiber.HeaderContentType)))
	status := strconv.Itoa(up.StatusCode())
	src := up.BodyStream()

	// HEAD, 204 and 304 responses carry no body to stream or rewrite.
	if src == nil {
		i.metrics.ResponsesTotal.WithLabelValues(rewrite.KindNone.String(), status).Inc()
		i.copyHeaders(c.Response(), up, rc, rule)
		fasthttp.ReleaseResponse(up)
		return nil
	}

	if kind == rewrite.KindNone {
		i.metrics.ResponsesTotal.WithLabelValues(kind.String(), status).Inc()
		i.copyHeaders(c.Response(), up, rc, rule)
		stream(c.Response(), up, src)
		return nil
	}

	body, err := BufferBody(src, i.maxBody)
	switch {
	case errors.Is(err, ErrBodyTooLarge):
		slog.Warn("body too large to rewrite, streaming original",
			"path", c.Path(), "kind", kind.String(), "limit", i.maxBody)
		i.metrics.ResponsesTotal.WithLabelValues(rewrite.KindNone.String(), status).Inc()
		i.copyHeaders(c.Response(), up, rc, rule)
		stream(c.Response(), up, io.MultiReader(bytes.NewReader(body), src))
		return nil
	case err != nil:
		fasthttp.ReleaseResponse(up)
		i.metrics.UpstreamErrors.Inc()
		slog.Error("reading upstream body", "path", c.Path(), "err", err)
		return fiber.NewError(fiber.StatusInternalServerError, "Proxy error: "+err.Error())
	}

	i.metrics.ResponsesTotal.WithLabelValues(kind.String(), status).Inc()
	i.metrics.BufferedBytes.Observe(float64(len(body)))

	out := c.Response()
	i.copyHeaders(out, up, rc, rule)
	encoding := string(up.Header.Peek(fiber.HeaderContentEncoding))
	fasthttp.ReleaseResponse(up)

	if len(body) == 0 {
		return nil
	}

	var apply func(string) (string, error)
	if hasRule {
		apply = rule.Apply
	}
	rewritten, err := i.rewrite(kind, encoding, body, rc, apply)
	if err != nil {
		i.metrics.RewriteFailures.WithLabelValues(kind.String()).Inc()
		slog.Error("rewrite failed, serving original", "path", c.Path(), "kind", kind.String(), "err", err)
		out.SetBody(body)
		return nil
	}

	out.Header.Del(fiber.HeaderContentEncoding)
	out.SetBodyString(rewritten)
	return nil
}

// rewrite decodes body and runs the rewriter for kind. applyRule, when set,
// runs over HTML after branding. Panics come back as errors.
func (i *Interceptor) rewrite(kind rewrite.Kind, encoding string, body []byte, rc rewrite.Context, applyRule func(string) (string, error)) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s rewriter panic: %v", kind, r)
		}
	}()

	text, err := decodeBody(encoding, body)
	if err != nil {
		return "", err
	}

	switch kind {
	case rewrite.KindHTML:
		out, err = i.html.Rewrite(string(text), rc)
		if err != nil {
			return "", err
		}
		if applyRule != nil {
			return applyRule(out)
		}
		return out, nil
	case rewrite.KindCSS:
		return i.css.Rewrite(string(text)), nil
	case rewrite.KindJS:
		return i.js.Rewrite(string(text), rc), nil
	default:
		return string(text), nil
	}
}

func (i *Interceptor) copyHeaders(out, up *fasthttp.Response, rc rewrite.Context, rule ruleset.Rule) {
	out.SetStatusCode(up.StatusCode())
	up.Header.VisitAll(func(k, v []byte) {
		out.Header.AddBytesKV(k, v)
	})
	out.Header.Del(fiber.HeaderConnection)
	for _, h := range strippedHeaders {
		out.Header.Del(h)
	}
	if rule.Headers.CSP != "" {
		out.Header.Set(fiber.HeaderContentSecurityPolicy, rule.Headers.CSP)
	}
	if loc := out.Header.Peek(fiber.HeaderLocation); len(loc) > 0 {
		out.Header.Set(fiber.HeaderLocation, rewrite.URL(string(loc), rc, i.target))
	}
}

// stream hands r to out as the response body; up is released when the
// server has finished writing it.
func stream(out, up *fasthttp.Response, r io.Reader) {
	size := up.Header.ContentLength()
	if size < 0 {
		size = -1
	}
	out.SetBodyStream(&upstreamBody{Reader: r, resp: up}, size)
}

type upstreamBody struct {
	io.Reader
	resp *fasthttp.Response
}

func (b *upstreamBody) Close() error {
	if b.resp != nil {
		fasthttp.ReleaseResponse(b.resp)
		b.resp = nil
	}
	return nil
}
