package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/virtualpytest/pilot/pkg/control"
	"github.com/virtualpytest/pilot/pkg/events"
)

// takeControlHandler handles POST /api/v1/control/take. Taking a device that
// someone else holds revokes their session; their queued work still drains.
func (s *Server) takeControlHandler(c *echo.Context) error {
	var req control.TakeRequest
	if err := c.Bind(&req); err != nil {
		return invalidInput(c, "malformed request body")
	}
	session, err := s.control.TakeControl(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	// Dashboard broadcast is best-effort; the session is already granted.
	_ = s.events.PublishSessionChanged(c.Request().Context(), events.SessionChangedPayload{
		SessionID: session.SessionID,
		HostName:  session.HostName,
		DeviceID:  session.DeviceID,
		TeamID:    session.TeamID,
		Change:    events.SessionTaken,
	})
	return c.JSON(http.StatusOK, session)
}

// releaseControlHandler handles POST /api/v1/control/release. Release is
// idempotent: unknown and already-revoked sessions answer released too.
func (s *Server) releaseControlHandler(c *echo.Context) error {
	var req ReleaseControlRequest
	if err := c.Bind(&req); err != nil {
		return invalidInput(c, "malformed request body")
	}
	if req.SessionID == "" {
		return invalidInput(c, "session_id is required")
	}
	s.control.Release(req.SessionID)
	_ = s.events.PublishSessionChanged(c.Request().Context(), events.SessionChangedPayload{
		SessionID: req.SessionID,
		Change:    events.SessionReleased,
	})
	return c.JSON(http.StatusOK, &StatusMessage{Status: "released"})
}

// listLockedHandler handles GET /api/v1/control/locked.
func (s *Server) listLockedHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.control.ListLocked())
}
