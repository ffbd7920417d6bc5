package handlers

import (
	"github.com/gofiber/fiber/v2"
)

var corsHeaders = [][2]string{
	{fiber.HeaderAccessControlAllowOrigin, "*"},
	{fiber.HeaderAccessControlAllowMethods, "GET, POST, PUT, DELETE, OPTIONS"},
	{fiber.HeaderAccessControlAllowHeaders, "Origin, X-Requested-With, Content-Type, Accept, Authorization"},
	{fiber.HeaderAccessControlAllowCredentials, "true"},
}

// CORS answers every OPTIONS request with 200 and an empty body, and adds
// the same fixed headers to every other response. The headers are set after
// the rest of the chain runs so they win over any CORS headers the upstream
// sent.
func CORS() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodOptions {
			setCORS(c)
			c.Status(fiber.StatusOK)
			return nil
		}

		err := c.Next()
		setCORS(c)
		return err
	}
}

func setCORS(c *fiber.Ctx) {
	for _, h := range corsHeaders {
		c.Set(h[0], h[1])
	}
}
