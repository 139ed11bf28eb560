package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tendant/once/pkg/once"
	"github.com/tendant/once/pkg/once/presigned"
)

// ErrInvalidKey is returned for keys that would resolve outside the base directory
var ErrInvalidKey = errors.New("invalid object key")

// Backend is a filesystem implementation of the once.BlobStore interface.
// Credentials are signed URLs served by presigned.Handlers mounted under
// URLPrefix.
type Backend struct {
	baseDir   string
	urlPrefix string
	signer    *presigned.Signer
}

// Config options for the filesystem backend
type Config struct {
	BaseDir   string            // Base directory for storing files
	URLPrefix string            // Public URL where presigned.Handlers are mounted
	Signer    *presigned.Signer // Signs upload and download URLs
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}
	if config.URLPrefix == "" {
		return nil, errors.New("URL prefix is required")
	}
	if config.Signer == nil || !config.Signer.IsEnabled() {
		return nil, errors.New("URL signer with a secret key is required")
	}

	if err := os.MkdirAll(config.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Backend{
		baseDir:   filepath.Clean(config.BaseDir),
		urlPrefix: strings.TrimSuffix(config.URLPrefix, "/"),
		signer:    config.Signer,
	}, nil
}

// PresignUpload returns a signed POST target for objectName
func (b *Backend) PresignUpload(ctx context.Context, objectName string, expiresIn time.Duration) (*once.UploadCredential, error) {
	if _, err := b.path(objectName); err != nil {
		return nil, err
	}
	q, err := b.signer.Sign(http.MethodPost, objectName, expiresIn)
	if err != nil {
		return nil, err
	}
	return &once.UploadCredential{
		URL:    b.urlPrefix + "/upload?" + q.Encode(),
		Fields: map[string]string{presigned.KeyParam: objectName},
	}, nil
}

// PresignDownload returns a signed GET URL for objectName
func (b *Backend) PresignDownload(ctx context.Context, objectName string, expiresIn time.Duration) (string, error) {
	if _, err := b.path(objectName); err != nil {
		return "", err
	}
	q, err := b.signer.Sign(http.MethodGet, objectName, expiresIn)
	if err != nil {
		return "", err
	}
	return b.urlPrefix + "/download?" + q.Encode(), nil
}

// Put writes content to objectName. The file appears atomically.
func (b *Backend) Put(ctx context.Context, objectName string, reader io.Reader) error {
	filePath, err := b.path(objectName)
	if err != nil {
		return err
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	return nil
}

// Open returns the content of objectName
func (b *Backend) Open(ctx context.Context, objectName string) (io.ReadCloser, error) {
	filePath, err := b.path(objectName)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, once.ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// Delete deletes objectName and any directories it leaves empty
func (b *Backend) Delete(ctx context.Context, objectName string) error {
	filePath, err := b.path(objectName)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return once.ErrObjectNotFound
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}

	b.cleanupEmptyDirectories(filepath.Dir(filePath))
	return nil
}

// path resolves objectName inside the base directory
func (b *Backend) path(objectName string) (string, error) {
	if objectName == "" || strings.ContainsRune(objectName, 0) || strings.Contains(objectName, "\\") {
		return "", ErrInvalidKey
	}
	for _, segment := range strings.Split(objectName, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return "", ErrInvalidKey
		}
	}
	return filepath.Join(b.baseDir, filepath.FromSlash(objectName)), nil
}

// cleanupEmptyDirectories removes empty directories up to baseDir
func (b *Backend) cleanupEmptyDirectories(dir string) {
	if dir == b.baseDir || !strings.HasPrefix(dir, b.baseDir) {
		return
	}

	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		if os.Remove(dir) == nil {
			b.cleanupEmptyDirectories(filepath.Dir(dir))
		}
	}
}
