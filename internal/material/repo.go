package material

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/emandor/kelas_service/internal/model"
)

var ErrNotFound = errors.New("material not found")

type Repo struct {
	db *sqlx.DB
}

func NewRepo(db *sqlx.DB) *Repo { return &Repo{db: db} }

func (r *Repo) Create(ctx context.Context, ownerID int64, title, body string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO materials (owner_id, title, body) VALUES (?, ?, ?)`,
		ownerID, title, body)
	if err != nil {
		return 0, fmt.Errorf("insert material: %w", err)
	}
	return res.LastInsertId()
}

// List returns materials newest first, without their bodies.
func (r *Repo) List(ctx context.Context) ([]model.Material, error) {
	out := []model.Material{}
	err := r.db.SelectContext(ctx, &out,
		`SELECT id, owner_id, title, created_at FROM materials ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list materials: %w", err)
	}
	return out, nil
}

func (r *Repo) Get(ctx context.Context, id int64) (*model.Material, error) {
	var m model.Material
	err := r.db.GetContext(ctx, &m,
		`SELECT id, owner_id, title, body, created_at FROM materials WHERE id=?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get material %d: %w", id, err)
	}
	return &m, nil
}
