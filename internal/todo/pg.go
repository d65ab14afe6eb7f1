package todo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore is the Postgres-backed Repository.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a Postgres-backed store on an existing pool.
func NewPGStore(pool *pgxpool.Pool) (*PGStore, error) {
	const op = "todo.NewPGStore"
	if pool == nil {
		return nil, fmt.Errorf("%s: pool is nil", op)
	}
	return &PGStore{pool: pool}, nil
}

// Migrate creates the todos table if it does not exist yet.  The schema is
// small enough that a bootstrap statement beats a migration tool.
func (s *PGStore) Migrate(ctx context.Context) error {
	const op = "PGStore.Migrate"
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS todos (
			id         serial PRIMARY KEY,
			text       text NOT NULL,
			completed  boolean NOT NULL DEFAULT false,
			created_at timestamptz NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// List implements Repository.List
func (s *PGStore) List(ctx context.Context) ([]Todo, error) {
	const op = "PGStore.List"
	rows, err := s.pool.Query(ctx,
		`SELECT id, text, completed, created_at FROM todos ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	todos, err := pgx.CollectRows(rows, pgx.RowToStructByName[Todo])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return todos, nil
}

// Create implements Repository.Create
func (s *PGStore) Create(ctx context.Context, text string) (Todo, error) {
	const op = "PGStore.Create"
	text, err := cleanText(text)
	if err != nil {
		return Todo{}, err
	}
	var t Todo
	err = s.pool.QueryRow(ctx,
		`INSERT INTO todos (text) VALUES ($1)
		 RETURNING id, text, completed, created_at`,
		text,
	).Scan(&t.ID, &t.Text, &t.Completed, &t.CreatedAt)
	if err != nil {
		return Todo{}, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}

// Update implements Repository.Update
func (s *PGStore) Update(ctx context.Context, id int64, p Patch) (Todo, error) {
	const op = "PGStore.Update"
	if p.Empty() {
		return Todo{}, fmt.Errorf("%s: %w", op, ErrEmptyPatch)
	}
	if p.Text != nil {
		text, err := cleanText(*p.Text)
		if err != nil {
			return Todo{}, err
		}
		p.Text = &text
	}
	var t Todo
	err := s.pool.QueryRow(ctx,
		`UPDATE todos
		    SET text = COALESCE($2, text), completed = COALESCE($3, completed)
		  WHERE id = $1
		 RETURNING id, text, completed, created_at`,
		id, p.Text, p.Completed,
	).Scan(&t.ID, &t.Text, &t.Completed, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Todo{}, fmt.Errorf("%s: id %d: %w", op, id, ErrNotFound)
	}
	if err != nil {
		return Todo{}, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}

// Delete implements Repository.Delete
func (s *PGStore) Delete(ctx context.Context, id int64) error {
	const op = "PGStore.Delete"
	tag, err := s.pool.Exec(ctx, `DELETE FROM todos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: id %d: %w", op, id, ErrNotFound)
	}
	return nil
}
