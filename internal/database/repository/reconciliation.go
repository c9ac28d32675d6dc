package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// ReconciliationRepo handles reconciliation findings.
type ReconciliationRepo struct{ db DBTX }

func NewReconciliationRepo(db DBTX) *ReconciliationRepo { return &ReconciliationRepo{db: db} }

func (r *ReconciliationRepo) Add(ctx context.Context, f Finding) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO reconciliation_findings(id, import_id, kind, fingerprint, reference, detail, created_at)
	VALUES(?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, f.ID, f.ImportID, f.Kind, f.Fingerprint, f.Reference, f.Detail)
	return err
}

// ListByImport returns findings for one import in insertion order.
func (r *ReconciliationRepo) ListByImport(ctx context.Context, importID string) ([]Finding, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, import_id, kind, fingerprint, reference, detail, created_at FROM reconciliation_findings WHERE import_id = ? ORDER BY rowid ASC`, importID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Finding
	for rows.Next() {
		var f Finding
		var imp sql.NullString
		if err := rows.Scan(&f.ID, &imp, &f.Kind, &f.Fingerprint, &f.Reference, &f.Detail, &f.CreatedAt); err != nil {
			return nil, err
		}
		if imp.Valid {
			f.ImportID = &imp.String
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
