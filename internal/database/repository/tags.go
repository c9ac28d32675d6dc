package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

// TagRepo handles tags.
type TagRepo struct {
	db DBTX
}

func NewTagRepo(db DBTX) *TagRepo { return &TagRepo{db: db} }

// TagID is the deterministic id for a tag name.
func TagID(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("tag:"+name)).String()
}

// Ensure creates the tag if needed and returns it.
func (r *TagRepo) Ensure(ctx context.Context, name string) (Tag, error) {
	t := Tag{ID: TagID(name), Name: name}
	_, err := r.db.ExecContext(ctx, `INSERT INTO tags(id, name) VALUES (?, ?) ON CONFLICT(name) DO NOTHING;`, t.ID, t.Name)
	if err != nil {
		return Tag{}, err
	}
	return t, nil
}

func (r *TagRepo) ByName(ctx context.Context, name string) (*Tag, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name FROM tags WHERE name = ?`, name)
	var t Tag
	if err := row.Scan(&t.ID, &t.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *TagRepo) List(ctx context.Context) ([]Tag, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM tags ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
