package repository

import (
	"context"

	"github.com/google/uuid"
)

// CategoryRepo handles categories.
type CategoryRepo struct {
	db DBTX
}

func NewCategoryRepo(db DBTX) *CategoryRepo {
	return &CategoryRepo{db: db}
}

// CategoryID is the deterministic id for a category name.
func CategoryID(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("cat:"+name)).String()
}

func (r *CategoryRepo) Upsert(ctx context.Context, c Category) error {
	if c.ID == "" {
		c.ID = CategoryID(c.Name)
	}
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO categories(id, name, sort_order)
	VALUES (?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
	 name=excluded.name,
	 sort_order=excluded.sort_order;
	`, c.ID, c.Name, c.SortOrder)
	return err
}

func (r *CategoryRepo) List(ctx context.Context) ([]Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, sort_order FROM categories ORDER BY sort_order, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.SortOrder); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Ensure inserts the category if its name is new and leaves an existing one
// untouched.
func (r *CategoryRepo) Ensure(ctx context.Context, name string, sortOrder int) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO categories(id, name, sort_order) VALUES (?, ?, ?)
	ON CONFLICT(name) DO NOTHING`, CategoryID(name), name, sortOrder)
	return err
}
