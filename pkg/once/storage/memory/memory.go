package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/tendant/once/pkg/once"
)

// Backend is an in-memory implementation of the once.BlobStore interface.
// Credentials it mints use the memory:// scheme and are only meaningful
// to Put and Get.
type Backend struct {
	mu      sync.RWMutex
	objects map[string][]byte
	now     func() time.Time
}

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{
		objects: make(map[string][]byte),
		now:     time.Now,
	}
}

// PresignUpload returns a pseudo credential for objectName
func (b *Backend) PresignUpload(ctx context.Context, objectName string, expiresIn time.Duration) (*once.UploadCredential, error) {
	return &once.UploadCredential{
		URL: "memory://upload",
		Fields: map[string]string{
			"key":     objectName,
			"expires": strconv.FormatInt(b.now().Add(expiresIn).Unix(), 10),
		},
	}, nil
}

// PresignDownload returns a pseudo URL for objectName
func (b *Backend) PresignDownload(ctx context.Context, objectName string, expiresIn time.Duration) (string, error) {
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(b.now().Add(expiresIn).Unix(), 10))
	return "memory://download/" + objectName + "?" + q.Encode(), nil
}

// Delete removes an object
func (b *Backend) Delete(ctx context.Context, objectName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[objectName]; !exists {
		return once.ErrObjectNotFound
	}
	delete(b.objects, objectName)
	return nil
}

// Put stores content under objectName
func (b *Backend) Put(ctx context.Context, objectName string, reader io.Reader) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("read object: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[objectName] = data
	return nil
}

// Open returns the content of objectName
func (b *Backend) Open(ctx context.Context, objectName string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.objects[objectName]
	if !exists {
		return nil, once.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Exists reports whether objectName is stored
func (b *Backend) Exists(objectName string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, exists := b.objects[objectName]
	return exists
}
