package handlers

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"

	"github.com/andesco/whitelabel/pkg/config"
	"github.com/andesco/whitelabel/pkg/metrics"
	"github.com/andesco/whitelabel/pkg/rewrite"
	"github.com/andesco/whitelabel/pkg/ruleset"
)

// Proxy forwards requests to the upstream site and hands the responses to an
// Interceptor.
type Proxy struct {
	target    config.Target
	host      string
	rules     ruleset.RuleSet
	timeout   time.Duration
	client    *fasthttp.Client
	intercept *Interceptor
	metrics   *metrics.Metrics
}

// NewProxy builds a Proxy. A nil m gets collectors on a private registry.
func NewProxy(cfg *config.Config, rules ruleset.RuleSet, m *metrics.Metrics) *Proxy {
	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}
	timeout := time.Duration(cfg.Proxy.TimeoutSeconds) * time.Second

	return &Proxy{
		target:  cfg.Target,
		host:    cfg.Branding.Domain,
		rules:   rules,
		timeout: timeout,
		client: &fasthttp.Client{
			NoDefaultUserAgentHeader: true,
			DisablePathNormalizing:   true,
			StreamResponseBody:       true,
			ReadTimeout:              timeout,
			WriteTimeout:             timeout,
		},
		intercept: NewInterceptor(cfg, rules, m),
		metrics:   m,
	}
}

// ProxySite is a Fiber handler that forwards every request to the upstream
// and serves the rewritten response.
func ProxySite(cfg *config.Config, rules ruleset.RuleSet, m *metrics.Metrics) fiber.Handler {
	return NewProxy(cfg, rules, m).Handle
}

func (p *Proxy) Handle(c *fiber.Ctx) error {
	host := strings.Clone(c.Hostname())
	if host == "" {
		host = p.host
	}
	rc := rewrite.NewContext(c.Protocol(), host)

	if isWebSocket(c) {
		return p.tunnel(c)
	}

	slog.Debug("proxy", "method", c.Method(), "url", c.OriginalURL(), "target", p.target.BaseURL)

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	c.Request().CopyTo(req)
	req.SetRequestURI(p.target.BaseURL + c.OriginalURL())
	req.Header.SetHost(p.target.Host())
	req.Header.Del(fiber.HeaderConnection)
	if rule, ok := p.rules.Match(rc.Host, c.Path()); ok {
		if err := applyRequestRule(req, rule); err != nil {
			slog.Error("applying request rule", "url", c.OriginalURL(), "err", err)
			return fiber.NewError(fiber.StatusInternalServerError, "Proxy error: "+err.Error())
		}
	}

	up := fasthttp.AcquireResponse()
	if err := p.client.Do(req, up); err != nil {
		fasthttp.ReleaseResponse(up)
		p.metrics.UpstreamErrors.Inc()
		slog.Error("proxy error", "method", c.Method(), "url", c.OriginalURL(), "err", err)
		return c.Status(fiber.StatusInternalServerError).SendString("Proxy error: " + err.Error())
	}

	return p.intercept.Intercept(c, up, rc)
}
