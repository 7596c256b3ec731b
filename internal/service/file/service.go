package file

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/pkg/storage"
)

type FileService interface {
	// ArchiveImport keeps the original upload of an import batch and returns its key
	ArchiveImport(ctx context.Context, batchID, filename string, data []byte) (string, error)

	// OpenImport reads an archived upload back
	OpenImport(ctx context.Context, path string) (io.ReadCloser, error)

	DeleteFile(ctx context.Context, path string) error
}

type fileServiceImpl struct {
	storage storage.FileStorage
	now     func() time.Time
}

func NewFileService(storage storage.FileStorage) FileService {
	return &fileServiceImpl{
		storage: storage,
		now:     time.Now,
	}
}

var importContentTypes = map[string]string{
	".csv":  "text/csv",
	".txt":  "text/plain",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".xls":  "application/vnd.ms-excel",
}

// ArchiveImport stores the upload as imports/{yyyy}/{mm}/{batchID}{ext}.
func (s *fileServiceImpl) ArchiveImport(ctx context.Context, batchID, filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	contentType, ok := importContentTypes[ext]
	if !ok {
		return "", fmt.Errorf("invalid file type: only csv, txt, xlsx, xls allowed")
	}
	if batchID == "" {
		return "", fmt.Errorf("batch id is required")
	}

	now := s.now().UTC()
	path := filepath.Join("imports", now.Format("2006"), now.Format("01"), batchID+ext)

	uploadedPath, err := s.storage.Upload(ctx, bytes.NewReader(data), path, contentType)
	if err != nil {
		return "", fmt.Errorf("failed to archive import: %w", err)
	}
	return uploadedPath, nil
}

func (s *fileServiceImpl) OpenImport(ctx context.Context, path string) (io.ReadCloser, error) {
	return s.storage.Download(ctx, path)
}

func (s *fileServiceImpl) DeleteFile(ctx context.Context, path string) error {
	return s.storage.Delete(ctx, path)
}
