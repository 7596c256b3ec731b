package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_RoundTrip(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	key, err := s.Upload(ctx, strings.NewReader("a,b\n1,2\n"), "imports/2024/01/batch.csv", "text/csv")
	require.NoError(t, err)
	assert.Equal(t, "imports/2024/01/batch.csv", key)

	rc, err := s.Download(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))

	require.NoError(t, s.Delete(ctx, key))
	require.NoError(t, s.Delete(ctx, key), "deleting twice is fine")

	_, err = s.Download(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStorage_StaysInsideBasePath(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	key, err := s.Upload(context.Background(), strings.NewReader("x"), "../../etc/passwd", "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "etc/passwd", key)

	_, err = s.Upload(context.Background(), strings.NewReader("x"), "..", "text/plain")
	assert.Error(t, err)
}
