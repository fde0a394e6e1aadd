package external

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/config"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/pkg/apierrors"
)

// BlobStore persists payment vouchers and returns a stable URL for the stored
// document.
type BlobStore interface {
	Save(ctx context.Context, filename string, content io.Reader, size int64) (string, error)
}

type localBlobStore struct {
	basePath string
	baseURL  string
	maxSize  int64
}

var allowedVoucherExtensions = map[string]bool{
	".pdf":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// NewLocalBlobStore stores vouchers on the local filesystem
func NewLocalBlobStore(cfg config.StorageConfig, maxSize int64) (BlobStore, error) {
	if err := os.MkdirAll(cfg.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &localBlobStore{
		basePath: cfg.BasePath,
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		maxSize:  maxSize,
	}, nil
}

func (s *localBlobStore) Save(ctx context.Context, filename string, content io.Reader, size int64) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedVoucherExtensions[ext] {
		return "", apierrors.NewValidation(
			fmt.Sprintf("tipo de comprobante no permitido: %s", ext), nil)
	}

	if size > s.maxSize {
		return "", apierrors.NewValidation(
			fmt.Sprintf("el comprobante excede el tamano maximo de %d bytes", s.maxSize), nil)
	}

	stored := fmt.Sprintf("%d-%s%s", time.Now().Unix(), uuid.New().String()[:8], ext)
	path := filepath.Join(s.basePath, stored)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create voucher file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, io.LimitReader(content, s.maxSize)); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write voucher file: %w", err)
	}

	return s.baseURL + "/" + stored, nil
}
