package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// AuditRepo stores workflow events. It satisfies rules.AuditRecorder.
type AuditRepo struct{ db DBTX }

func NewAuditRepo(db DBTX) *AuditRepo { return &AuditRepo{db: db} }

// Record stores an event with a JSON payload.
func (r *AuditRepo) Record(ctx context.Context, kind string, payload map[string]any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode audit payload: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO audit_events(id, kind, payload, created_at) VALUES(?, ?, ?, CURRENT_TIMESTAMP)`,
		uuid.NewString(), kind, string(data))
	return err
}

// List returns events of kind, or all events when kind is empty, oldest
// first.
func (r *AuditRepo) List(ctx context.Context, kind string) ([]AuditEvent, error) {
	query := `SELECT id, kind, payload, created_at FROM audit_events`
	var args []any
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY created_at ASC, rowid ASC`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AuditEvent
	for rows.Next() {
		var e AuditEvent
		if err := rows.Scan(&e.ID, &e.Kind, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
