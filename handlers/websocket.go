package handlers

import (
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

const defaultDialTimeout = 10 * time.Second

func isWebSocket(c *fiber.Ctx) bool {
	return strings.EqualFold(c.Get(fiber.HeaderUpgrade), "websocket")
}

// tunnel replays the upgrade request to the upstream and, once the client
// connection is hijacked, relays raw bytes both ways. The upstream's 101
// response reaches the client through the relay.
func (p *Proxy) tunnel(c *fiber.Ctx) error {
	upstream, err := p.dialUpstream()
	if err != nil {
		p.metrics.UpstreamErrors.Inc()
		slog.Error("websocket dial failed", "url", c.OriginalURL(), "err", err)
		return c.Status(fiber.StatusInternalServerError).SendString("Proxy error: " + err.Error())
	}

	var hdr fasthttp.RequestHeader
	c.Request().Header.CopyTo(&hdr)
	hdr.SetHost(p.target.Host())
	head := hdr.Header()

	slog.Debug("proxy websocket", "url", c.OriginalURL(), "target", p.target.BaseURL)
	p.metrics.ResponsesTotal.WithLabelValues("websocket", "upgrade").Inc()

	c.Context().HijackSetNoResponse(true)
	c.Context().Hijack(func(client net.Conn) {
		defer upstream.Close()
		if _, err := upstream.Write(head); err != nil {
			slog.Error("websocket handshake forward failed", "err", err)
			return
		}
		relay(client, upstream)
	})
	return nil
}

func (p *Proxy) dialUpstream() (net.Conn, error) {
	host := p.target.Host()
	addr := host
	if _, _, err := net.SplitHostPort(host); err != nil {
		if p.target.TLS() {
			addr = net.JoinHostPort(host, "443")
		} else {
			addr = net.JoinHostPort(host, "80")
		}
	}

	timeout := p.timeout
	if timeout == 0 {
		timeout = defaultDialTimeout
	}
	conn, err := fasthttp.DialTimeout(addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if !p.target.TLS() {
		return conn, nil
	}

	serverName, _, err := net.SplitHostPort(addr)
	if err != nil {
		conn.Close()
		return nil, err
	}
	tlsConn := tls.Client(conn, &tls.Config{ServerName: serverName})
	_ = conn.SetDeadline(time.Now().Add(timeout))
	if err := tlsConn.Handshake(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake with %s: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Time{})
	return tlsConn, nil
}

// relay copies in both directions and returns when either side is done.
func relay(client, upstream net.Conn) {
	done := make(chan struct{}, 2)
	pipe := func(dst, src net.Conn) {
		if _, err := io.Copy(dst, src); err != nil {
			slog.Debug("websocket relay closed", "err", err)
		}
		done <- struct{}{}
	}
	go pipe(upstream, client)
	go pipe(client, upstream)
	<-done
}
