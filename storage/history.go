package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/richinex/scribe/eval"
)

// HistoryStore is the append-only evaluation history table.
type HistoryStore struct {
	db *sql.DB
}

// AppendEntry stores one history entry.
func (h *HistoryStore) AppendEntry(ctx context.Context, e eval.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode history entry: %w", err)
	}
	if _, err := h.db.ExecContext(ctx,
		"INSERT INTO eval_history (task_id, entry) VALUES (?, ?)", e.TaskID, string(data)); err != nil {
		return fmt.Errorf("failed to append history entry: %w", err)
	}
	return nil
}

// LoadEntries returns every entry in append order.
func (h *HistoryStore) LoadEntries(ctx context.Context) ([]eval.Entry, error) {
	rows, err := h.db.QueryContext(ctx, "SELECT entry FROM eval_history ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []eval.Entry
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		var e eval.Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("failed to decode history entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

var _ eval.HistoryStore = (*HistoryStore)(nil)
