package todo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory Repository, used by tests and as a fallback when
// no database is configured.  Safe for concurrent use.
type MemStore struct {
	mu     sync.RWMutex
	items  map[int64]Todo
	nextID int64

	// nowFunc allows tests to control timestamps
	nowFunc func() time.Time
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{items: map[int64]Todo{}}
}

// List implements Repository.List
func (s *MemStore) List(_ context.Context) ([]Todo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	todos := make([]Todo, 0, len(s.items))
	for _, t := range s.items {
		todos = append(todos, t)
	}
	sort.Slice(todos, func(i, j int) bool {
		if !todos[i].CreatedAt.Equal(todos[j].CreatedAt) {
			return todos[i].CreatedAt.After(todos[j].CreatedAt)
		}
		return todos[i].ID > todos[j].ID
	})
	return todos, nil
}

// Create implements Repository.Create
func (s *MemStore) Create(_ context.Context, text string) (Todo, error) {
	text, err := cleanText(text)
	if err != nil {
		return Todo{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	t := Todo{
		ID:        s.nextID,
		Text:      text,
		CreatedAt: s.now(),
	}
	s.items[t.ID] = t
	return t, nil
}

// Update implements Repository.Update
func (s *MemStore) Update(_ context.Context, id int64, p Patch) (Todo, error) {
	const op = "MemStore.Update"
	if p.Empty() {
		return Todo{}, fmt.Errorf("%s: %w", op, ErrEmptyPatch)
	}
	var text string
	if p.Text != nil {
		var err error
		if text, err = cleanText(*p.Text); err != nil {
			return Todo{}, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.items[id]
	if !ok {
		return Todo{}, fmt.Errorf("%s: id %d: %w", op, id, ErrNotFound)
	}
	if p.Text != nil {
		t.Text = text
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	s.items[id] = t
	return t, nil
}

// Delete implements Repository.Delete
func (s *MemStore) Delete(_ context.Context, id int64) error {
	const op = "MemStore.Delete"
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return fmt.Errorf("%s: id %d: %w", op, id, ErrNotFound)
	}
	delete(s.items, id)
	return nil
}

func (s *MemStore) now() time.Time {
	if s.nowFunc != nil {
		return s.nowFunc()
	}
	return time.Now()
}
