// Package todo holds the shared todo list and its storage backends.  The
// list is one collection shared by every signed-in user; ownership and
// per-user filtering are deliberately absent.
package todo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no todo has the requested id.
	ErrNotFound = errors.New("todo not found")

	// ErrEmptyText is returned when a todo's text is empty after trimming.
	ErrEmptyText = errors.New("text is required")

	// ErrEmptyPatch is returned when an update changes nothing.
	ErrEmptyPatch = errors.New("update requires at least one field")
)

// Todo is one item on the shared list.  The store assigns the id.
type Todo struct {
	ID        int64     `json:"id" db:"id"`
	Text      string    `json:"text" db:"text"`
	Completed bool      `json:"completed" db:"completed"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Patch is a partial update.  Nil fields are left untouched; at least one
// must be set.
type Patch struct {
	Text      *string `json:"text"`
	Completed *bool   `json:"completed"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Text == nil && p.Completed == nil
}

// Repository is the storage contract for the shared list.  List order is
// newest first, with id as the tie breaker so the order is stable when
// timestamps collide.
type Repository interface {
	List(ctx context.Context) ([]Todo, error)
	Create(ctx context.Context, text string) (Todo, error)
	Update(ctx context.Context, id int64, p Patch) (Todo, error)
	Delete(ctx context.Context, id int64) error
}

// cleanText trims the text and rejects anything left empty.  Surrounding
// whitespace is never stored.
func cleanText(text string) (string, error) {
	const op = "todo.cleanText"
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%s: %w", op, ErrEmptyText)
	}
	return text, nil
}
