package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"budget/internal/recordstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "budget.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	_, err = s.Get(ctx, recordstore.KeyExpenses)
	assert.True(t, errors.Is(err, recordstore.ErrNotFound))

	require.NoError(t, s.Set(ctx, recordstore.KeyExpenses, []byte(`[]`)))
	require.NoError(t, s.Set(ctx, recordstore.KeyExpenses, []byte(`[{"id":"1"}]`)))

	got, err := s.Get(ctx, recordstore.KeyExpenses)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"1"}]`, string(got))
}

func TestStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "budget.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, recordstore.KeyUsers, []byte(`["a"]`)))
	require.NoError(t, s.Close())

	// Reopening re-runs migrations, which must be a no-op.
	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, recordstore.KeyUsers)
	require.NoError(t, err)
	assert.Equal(t, `["a"]`, string(got))
}
