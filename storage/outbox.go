package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/richinex/scribe/model"
)

// Outbox persists outgoing email instead of delivering it. A separate
// relay is expected to drain the table.
type Outbox struct {
	db *sql.DB
}

// Send stores the message and returns its delivery ID.
func (o *Outbox) Send(ctx context.Context, msg model.Message) (string, error) {
	id := uuid.NewString()
	_, err := o.db.ExecContext(ctx,
		`INSERT INTO outbox (delivery_id, recipient, subject, body, is_html) VALUES (?, ?, ?, ?, ?)`,
		id, msg.Recipient, msg.Subject, msg.Body, msg.HTML)
	if err != nil {
		return "", fmt.Errorf("failed to queue email: %w", err)
	}
	return id, nil
}

// Queued is a message waiting in the outbox.
type Queued struct {
	DeliveryID string
	Message    model.Message
	CreatedAt  time.Time
}

// Pending lists queued messages, oldest first.
func (o *Outbox) Pending(ctx context.Context) ([]Queued, error) {
	rows, err := o.db.QueryContext(ctx,
		`SELECT delivery_id, recipient, subject, body, is_html, created_at FROM outbox ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	var out []Queued
	for rows.Next() {
		var q Queued
		var created string
		if err := rows.Scan(&q.DeliveryID, &q.Message.Recipient, &q.Message.Subject, &q.Message.Body, &q.Message.HTML, &created); err != nil {
			return nil, fmt.Errorf("failed to scan outbox row: %w", err)
		}
		q.CreatedAt, _ = time.Parse(time.DateTime, created)
		out = append(out, q)
	}
	return out, rows.Err()
}
