package hostapi

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"
)

const (
	streamInterval     = 250 * time.Millisecond
	streamWriteTimeout = 5 * time.Second
)

// executionStreamHandler handles GET /host/executions/:id/stream. It
// upgrades to WebSocket and pushes status snapshots until the execution
// reaches a terminal state or the client goes away. Each frame is the same
// JSON body the status endpoint serves, so pollers and streamers parse one
// shape.
func (s *Server) executionStreamHandler(c *echo.Context) error {
	executionID := c.Param("id")
	if _, err := s.runner.Status(executionID); err != nil {
		return respondError(c, err)
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := c.Request().Context()
	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	for {
		snap, err := s.runner.Status(executionID)
		if err != nil {
			// Record evicted mid-stream, nothing more to send.
			return nil
		}
		if err := writeFrame(ctx, conn, snap); err != nil {
			return nil
		}
		if snap.Status.IsTerminal() {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// writeFrame sends one JSON message with a write timeout so a stalled
// client cannot pin the handler.
func writeFrame(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
