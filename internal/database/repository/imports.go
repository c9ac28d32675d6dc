package repository

import (
	"context"
	"database/sql"
	"errors"
)

// ImportRepo handles import records, one per ingested file.
type ImportRepo struct{ db DBTX }

func NewImportRepo(db DBTX) *ImportRepo { return &ImportRepo{db: db} }

// Start records a running import.
func (r *ImportRepo) Start(ctx context.Context, im Import) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO imports(id, source_file, bank_id, method, status, started_at)
	VALUES(?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, im.ID, im.SourceFile, im.BankID, im.Method, ImportRunning)
	return err
}

// Finish stores the final counts and status.
func (r *ImportRepo) Finish(ctx context.Context, im Import) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE imports SET method = ?, row_count = ?, ingested = ?, duplicates = ?, rejected = ?,
	 status = ?, error = ?, finished_at = CURRENT_TIMESTAMP
	WHERE id = ?
	`, im.Method, im.RowCount, im.Ingested, im.Duplicates, im.Rejected, im.Status, im.Error, im.ID)
	return err
}

const importColumns = `id, source_file, bank_id, method, row_count, ingested, duplicates, rejected, status, error, started_at, finished_at`

func (r *ImportRepo) Get(ctx context.Context, id string) (*Import, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+importColumns+` FROM imports WHERE id = ?`, id)
	im, err := scanImport(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &im, nil
}

func (r *ImportRepo) List(ctx context.Context) ([]Import, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+importColumns+` FROM imports ORDER BY started_at ASC, rowid ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Import
	for rows.Next() {
		im, err := scanImport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, im)
	}
	return out, rows.Err()
}

func scanImport(row scanner) (Import, error) {
	var im Import
	var errText sql.NullString
	var finished sql.NullTime
	if err := row.Scan(&im.ID, &im.SourceFile, &im.BankID, &im.Method, &im.RowCount, &im.Ingested,
		&im.Duplicates, &im.Rejected, &im.Status, &errText, &im.StartedAt, &finished); err != nil {
		return Import{}, err
	}
	if errText.Valid {
		im.Error = &errText.String
	}
	if finished.Valid {
		im.FinishedAt = &finished.Time
	}
	return im, nil
}
