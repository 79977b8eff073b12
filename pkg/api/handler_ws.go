package api

import (
	"net/http"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"
)

// wsHandler handles GET /api/v1/events/ws: upgrades the connection and hands
// it to the event fan-out. Blocks until the client disconnects.
func (s *Server) wsHandler(c *echo.Context) error {
	if s.deps.ConnManager == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "event stream is not available")
	}

	opts := &websocket.AcceptOptions{}
	if len(s.cfg.AllowedWSOrigins) > 0 {
		opts.OriginPatterns = s.cfg.AllowedWSOrigins
	} else {
		// No allowlist configured: same-origin only (the library default)
		// would reject dashboards served from another host, so local
		// deployments typically list their origins explicitly.
		opts.InsecureSkipVerify = true
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), opts)
	if err != nil {
		return err
	}

	s.deps.ConnManager.HandleConnection(c.Request().Context(), conn)
	return nil
}
