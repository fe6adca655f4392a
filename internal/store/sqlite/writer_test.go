package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, keep int) *SnapshotStore {
	t.Helper()
	s, err := New(WriterConfig{DBPath: filepath.Join(t.TempDir(), "master.db"), Keep: keep})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSnapshotStore_SaveLatest(t *testing.T) {
	s := openStore(t, 3)
	ctx := context.Background()

	_, _, err := s.Latest(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	base := time.Date(2024, 12, 5, 8, 0, 0, 0, time.UTC)
	_, err = s.Save(ctx, base, "http", []byte(`[{"token":"1"}]`))
	require.NoError(t, err)
	_, err = s.Save(ctx, base.Add(time.Hour), "http", []byte(`[{"token":"2"}]`))
	require.NoError(t, err)

	body, at, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, `[{"token":"2"}]`, string(body))
	assert.True(t, at.Equal(base.Add(time.Hour)))
	assert.NoError(t, s.Ping(ctx))
}

func TestSnapshotStore_Prunes(t *testing.T) {
	s := openStore(t, 2)
	ctx := context.Background()

	base := time.Date(2024, 12, 5, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := s.Save(ctx, base.Add(time.Duration(i)*time.Minute), "file", []byte{byte('a' + i)})
		require.NoError(t, err)
	}

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	body, _, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "e", string(body))
}
