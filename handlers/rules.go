package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/andesco/whitelabel/pkg/ruleset"
)

// applyRequestRule applies a rule's header overrides and URL mods to the
// request about to be sent upstream.
func applyRequestRule(req *fasthttp.Request, rule ruleset.Rule) error {
	h := rule.Headers
	if h.UserAgent != "" {
		req.Header.SetUserAgent(h.UserAgent)
	}
	overrideHeader(&req.Header, fiber.HeaderXForwardedFor, h.XForwardedFor)
	overrideHeader(&req.Header, fiber.HeaderReferer, h.Referer)
	if h.Cookie != "" {
		req.Header.DelAllCookies()
		req.Header.Set(fiber.HeaderCookie, h.Cookie)
	}

	mods := rule.URLMods
	if len(mods.Path) == 0 && len(mods.Query) == 0 {
		return nil
	}

	uri := req.URI()
	if len(mods.Path) > 0 {
		path, err := rule.RewritePath(string(uri.Path()))
		if err != nil {
			return err
		}
		uri.SetPath(path)
	}
	args := uri.QueryArgs()
	for _, kv := range mods.Query {
		if kv.Value == "" {
			args.Del(kv.Key)
			continue
		}
		args.Set(kv.Key, kv.Value)
	}
	return nil
}

// overrideHeader leaves key alone for an empty value and removes it for "none".
func overrideHeader(h *fasthttp.RequestHeader, key, value string) {
	switch value {
	case "":
	case "none":
		h.Del(key)
	default:
		h.Set(key, value)
	}
}
