package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

// Handlers receive decoded notifications. Either may be nil; its channel is
// then not subscribed.
type Handlers struct {
	OnTreeChanged    func(TreeChangedPayload)
	OnSessionChanged func(SessionChangedPayload)
}

// Listener holds one dedicated pgx connection in LISTEN mode and dispatches
// notifications to the handlers. The receive loop is the only goroutine
// that touches the connection; on receive errors it reconnects with
// exponential backoff and re-issues LISTEN for its channels.
type Listener struct {
	connString string
	handlers   Handlers

	connMu sync.Mutex
	conn   *pgx.Conn

	cancelLoop context.CancelFunc
	loopDone   chan struct{}
}

// NewListener builds a listener for the given connection string.
func NewListener(connString string, handlers Handlers) *Listener {
	return &Listener{connString: connString, handlers: handlers}
}

// Start connects, subscribes, and launches the receive loop.
func (l *Listener) Start(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.connString)
	if err != nil {
		return fmt.Errorf("failed to connect for LISTEN: %w", err)
	}
	if err := l.subscribe(ctx, conn); err != nil {
		_ = conn.Close(ctx)
		return err
	}

	l.connMu.Lock()
	l.conn = conn
	l.connMu.Unlock()

	loopCtx, cancel := context.WithCancel(ctx)
	l.cancelLoop = cancel
	l.loopDone = make(chan struct{})
	go func() {
		defer close(l.loopDone)
		l.receiveLoop(loopCtx)
	}()

	slog.Info("Event listener started")
	return nil
}

func (l *Listener) channels() []string {
	var out []string
	if l.handlers.OnTreeChanged != nil {
		out = append(out, TreeChannel)
	}
	if l.handlers.OnSessionChanged != nil {
		out = append(out, SessionChannel)
	}
	return out
}

func (l *Listener) subscribe(ctx context.Context, conn *pgx.Conn) error {
	for _, ch := range l.channels() {
		sanitized := pgx.Identifier{ch}.Sanitize()
		if _, err := conn.Exec(ctx, "LISTEN "+sanitized); err != nil {
			return fmt.Errorf("LISTEN %s failed: %w", sanitized, err)
		}
	}
	return nil
}

func (l *Listener) receiveLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		l.connMu.Lock()
		conn := l.conn
		l.connMu.Unlock()
		if conn == nil {
			l.reconnect(ctx)
			continue
		}

		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("NOTIFY receive error", "error", err)
			l.reconnect(ctx)
			continue
		}
		l.dispatch(notification.Channel, []byte(notification.Payload))
	}
}

func (l *Listener) dispatch(channel string, payload []byte) {
	switch channel {
	case TreeChannel:
		var p TreeChangedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			slog.Warn("Malformed tree event dropped", "error", err)
			return
		}
		l.handlers.OnTreeChanged(p)
	case SessionChannel:
		var p SessionChangedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			slog.Warn("Malformed session event dropped", "error", err)
			return
		}
		l.handlers.OnSessionChanged(p)
	}
}

func (l *Listener) reconnect(ctx context.Context) {
	l.connMu.Lock()
	if l.conn != nil {
		_ = l.conn.Close(ctx)
		l.conn = nil
	}
	l.connMu.Unlock()

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		conn, err := pgx.Connect(ctx, l.connString)
		if err != nil {
			slog.Error("LISTEN reconnect failed", "error", err, "backoff", backoff)
			backoff = min(backoff*2, 30*time.Second)
			continue
		}
		if err := l.subscribe(ctx, conn); err != nil {
			slog.Error("Re-LISTEN failed", "error", err)
			_ = conn.Close(ctx)
			continue
		}

		l.connMu.Lock()
		l.conn = conn
		l.connMu.Unlock()
		slog.Info("Event listener reconnected")
		return
	}
}

// Stop ends the receive loop and closes the connection.
func (l *Listener) Stop(ctx context.Context) {
	if l.cancelLoop != nil {
		l.cancelLoop()
	}
	if l.loopDone != nil {
		<-l.loopDone
	}
	l.connMu.Lock()
	defer l.connMu.Unlock()
	if l.conn != nil {
		_ = l.conn.Close(ctx)
		l.conn = nil
	}
}
