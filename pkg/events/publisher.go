package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// Publisher broadcasts notifications via pg_notify. All events here are
// transient: a process that was down simply rebuilds its caches on the next
// miss, so there is no catch-up table.
type Publisher struct {
	db *sql.DB
}

// NewPublisher wraps the shared database pool.
func NewPublisher(db *sql.DB) *Publisher {
	return &Publisher{db: db}
}

// PublishTreeChanged announces a navigation tree mutation.
func (p *Publisher) PublishTreeChanged(ctx context.Context, payload TreeChangedPayload) error {
	return p.notify(ctx, TreeChannel, payload)
}

// PublishSessionChanged announces a session lifecycle transition.
func (p *Publisher) PublishSessionChanged(ctx context.Context, payload SessionChangedPayload) error {
	return p.notify(ctx, SessionChannel, payload)
}

// notify is a no-op on a nil publisher: processes running without a
// database simply skip cross-process invalidation.
func (p *Publisher) notify(ctx context.Context, channel string, payload any) error {
	if p == nil || p.db == nil {
		return nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", channel, err)
	}
	if _, err := p.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", channel, string(raw)); err != nil {
		return fmt.Errorf("pg_notify on %s failed: %w", channel, err)
	}
	return nil
}
