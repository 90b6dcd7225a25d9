package services

import (
	"strings"
	"time"

	"promptstudio/utils"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v2"
)

const (
	reqIDKey    = "reqId"
	reqIDHeader = "X-Request-Id"
)

// RequestLogger tags every request with an id (reusing a sane inbound
// X-Request-Id) and logs its outcome at a level matching the status.
func RequestLogger() fiber.Handler {
	base := log.With("component", "http")

	return func(c *fiber.Ctx) error {
		reqID := strings.TrimSpace(c.Get(reqIDHeader))
		if reqID == "" || len(reqID) > 64 {
			reqID = utils.NewJobID()
		}
		c.Locals(reqIDKey, reqID)
		c.Set(reqIDHeader, reqID)

		start := time.Now()
		path := c.Path()
		method := c.Method()
		ip := c.IP()

		// The User-Agent can get extremely long; keep it bounded.
		ua := strings.TrimSpace(string(c.Context().UserAgent()))
		if len(ua) > 200 {
			ua = ua[:200]
		}

		base.Debug("request started", "reqId", reqID, "method", method, "path", path, "ip", ip, "ua", ua)

		err := c.Next()
		dur := time.Since(start)

		status := c.Response().StatusCode()
		if err != nil {
			base.Error("request failed", "reqId", reqID, "method", method, "path", path, "status", status, "dur", dur.String(), "err", err)
			return err
		}

		switch {
		case status >= fiber.StatusInternalServerError:
			base.Error("request completed", "reqId", reqID, "method", method, "path", path, "status", status, "dur", dur.String())
		case status >= fiber.StatusBadRequest:
			base.Warn("request completed", "reqId", reqID, "method", method, "path", path, "status", status, "dur", dur.String())
		default:
			base.Info("request completed", "reqId", reqID, "method", method, "path", path, "status", status, "dur", dur.String())
		}
		return nil
	}
}

func ReqID(c *fiber.Ctx) string {
	if v := c.Locals(reqIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func HttpLogger(action string, c *fiber.Ctx) *log.Logger {
	return log.With(
		"component", "api",
		"action", action,
		"reqId", ReqID(c),
		"method", c.Method(),
		"path", c.Path(),
	)
}
