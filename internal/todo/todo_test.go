package todo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore_Create(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tests := []struct {
		name      string
		text      string
		wantText  string
		wantIsErr error
	}{
		{name: "valid", text: "buy milk", wantText: "buy milk"},
		{name: "trims-whitespace", text: "  buy milk\n", wantText: "buy milk"},
		{name: "empty", text: "", wantIsErr: ErrEmptyText},
		{name: "whitespace-only", text: "   \t ", wantIsErr: ErrEmptyText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			s := NewMemStore()
			got, err := s.Create(ctx, tt.text)
			if tt.wantIsErr != nil {
				require.Error(err)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted %q and got %q", tt.wantIsErr, err)
				return
			}
			require.NoError(err)
			assert.Positive(got.ID)
			assert.Equal(tt.wantText, got.Text)
			assert.False(got.Completed)
			assert.False(got.CreatedAt.IsZero())
		})
	}

	t.Run("ids-are-assigned-in-sequence", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s := NewMemStore()
		for want := int64(1); want <= 3; want++ {
			got, err := s.Create(ctx, "task")
			require.NoError(err)
			assert.Equal(want, got.ID)
		}
	})
}

func TestMemStore_List(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	topAssert, topRequire := assert.New(t), require.New(t)

	s := NewMemStore()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	s.nowFunc = func() time.Time { return clock }

	first, err := s.Create(ctx, "first")
	topRequire.NoError(err)
	clock = base.Add(time.Second)
	second, err := s.Create(ctx, "second")
	topRequire.NoError(err)
	clock = base.Add(2 * time.Second)
	third, err := s.Create(ctx, "third")
	topRequire.NoError(err)

	got, err := s.List(ctx)
	topRequire.NoError(err)
	topRequire.Len(got, 3)
	// newest first
	topAssert.Equal(third.ID, got[0].ID)
	topAssert.Equal(second.ID, got[1].ID)
	topAssert.Equal(first.ID, got[2].ID)

	t.Run("empty-list", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		got, err := NewMemStore().List(ctx)
		require.NoError(err)
		assert.Empty(got)
		assert.NotNil(got)
	})

	t.Run("ties-break-by-id", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s := NewMemStore()
		s.nowFunc = func() time.Time { return base }
		for i := 0; i < 5; i++ {
			_, err := s.Create(ctx, "same instant")
			require.NoError(err)
		}
		got, err := s.List(ctx)
		require.NoError(err)
		require.Len(got, 5)
		for i := 1; i < len(got); i++ {
			assert.Greater(got[i-1].ID, got[i].ID)
		}
	})
}

func TestMemStore_Update(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	strPtr := func(s string) *string { return &s }
	boolPtr := func(b bool) *bool { return &b }

	newStoreWith := func(t *testing.T, text string) (*MemStore, Todo) {
		t.Helper()
		s := NewMemStore()
		created, err := s.Create(ctx, text)
		require.NoError(t, err)
		return s, created
	}

	t.Run("text-only", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s, created := newStoreWith(t, "before")
		got, err := s.Update(ctx, created.ID, Patch{Text: strPtr("after")})
		require.NoError(err)
		assert.Equal("after", got.Text)
		assert.False(got.Completed)
		assert.Equal(created.CreatedAt, got.CreatedAt)
	})
	t.Run("completed-only", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s, created := newStoreWith(t, "task")
		got, err := s.Update(ctx, created.ID, Patch{Completed: boolPtr(true)})
		require.NoError(err)
		assert.True(got.Completed)
		assert.Equal("task", got.Text)
	})
	t.Run("both-fields", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s, created := newStoreWith(t, "task")
		got, err := s.Update(ctx, created.ID, Patch{Text: strPtr("done task"), Completed: boolPtr(true)})
		require.NoError(err)
		assert.Equal("done task", got.Text)
		assert.True(got.Completed)
	})
	t.Run("empty-patch", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s, created := newStoreWith(t, "task")
		_, err := s.Update(ctx, created.ID, Patch{})
		require.Error(err)
		assert.True(errors.Is(err, ErrEmptyPatch))
	})
	t.Run("blank-text", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s, created := newStoreWith(t, "task")
		_, err := s.Update(ctx, created.ID, Patch{Text: strPtr("  ")})
		require.Error(err)
		assert.True(errors.Is(err, ErrEmptyText))

		// the stored todo is untouched
		got, err := s.List(ctx)
		require.NoError(err)
		require.Len(got, 1)
		assert.Equal("task", got[0].Text)
	})
	t.Run("unknown-id", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s := NewMemStore()
		_, err := s.Update(ctx, 999, Patch{Completed: boolPtr(true)})
		require.Error(err)
		assert.True(errors.Is(err, ErrNotFound))
	})
}

func TestMemStore_Delete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	assert, require := assert.New(t), require.New(t)

	s := NewMemStore()
	created, err := s.Create(ctx, "task")
	require.NoError(err)

	require.NoError(s.Delete(ctx, created.ID))

	got, err := s.List(ctx)
	require.NoError(err)
	assert.Empty(got)

	err = s.Delete(ctx, created.ID)
	require.Error(err)
	assert.True(errors.Is(err, ErrNotFound))
}
