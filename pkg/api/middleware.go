package api

import (
	"log/slog"
	"time"

	echo "github.com/labstack/echo/v5"
)

// securityHeaders returns middleware that sets standard security response headers.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			return next(c)
		}
	}
}

// requestLogger logs one line per request at debug, with failures at warn.
func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			start := time.Now()
			err := next(c)
			attrs := []any{
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"duration", time.Since(start).Round(time.Millisecond).String(),
			}
			if err != nil {
				slog.Warn("Request failed", append(attrs, "error", err)...)
			} else {
				slog.Debug("Request served", attrs...)
			}
			return err
		}
	}
}
