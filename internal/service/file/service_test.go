package file

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveImport(t *testing.T) {
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	svc := &fileServiceImpl{
		storage: local,
		now:     func() time.Time { return time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC) },
	}

	key, err := svc.ArchiveImport(context.Background(), "2dPYY7Qd5pZ", "Attendance March.XLSX", []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, "imports/2024/03/2dPYY7Qd5pZ.xlsx", key)

	rc, err := svc.OpenImport(context.Background(), key)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestArchiveImport_RejectsUnknownType(t *testing.T) {
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = NewFileService(local).ArchiveImport(context.Background(), "b1", "photo.png", []byte("x"))
	assert.Error(t, err)
}

func TestDeleteFile(t *testing.T) {
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	svc := NewFileService(local)
	ctx := context.Background()

	key, err := svc.ArchiveImport(ctx, "b2", "march.csv", []byte("a,b\n"))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteFile(ctx, key))
	_, err = svc.OpenImport(ctx, key)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
