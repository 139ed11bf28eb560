package fs_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/once/pkg/once"
	"github.com/tendant/once/pkg/once/presigned"
	"github.com/tendant/once/pkg/once/storage/fs"
)

func newBackend(t *testing.T) (*fs.Backend, *presigned.Signer, string) {
	t.Helper()
	dir := t.TempDir()
	signer := presigned.New(presigned.WithSecretKey([]byte("secret")))
	b, err := fs.New(fs.Config{BaseDir: dir, URLPrefix: "http://localhost:8080/_blob/", Signer: signer})
	require.NoError(t, err)
	return b, signer, dir
}

func TestNewValidation(t *testing.T) {
	signer := presigned.New(presigned.WithSecretKey([]byte("secret")))

	_, err := fs.New(fs.Config{URLPrefix: "http://x", Signer: signer})
	assert.Error(t, err)
	_, err = fs.New(fs.Config{BaseDir: t.TempDir(), Signer: signer})
	assert.Error(t, err)
	_, err = fs.New(fs.Config{BaseDir: t.TempDir(), URLPrefix: "http://x", Signer: presigned.New()})
	assert.Error(t, err)
}

func TestPutOpenDelete(t *testing.T) {
	b, _, dir := newBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, "abc123/my file.txt", strings.NewReader("hello")))

	rc, err := b.Open(ctx, "abc123/my file.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, b.Delete(ctx, "abc123/my file.txt"))
	assert.ErrorIs(t, b.Delete(ctx, "abc123/my file.txt"), once.ErrObjectNotFound)

	_, err = os.Stat(filepath.Join(dir, "abc123"))
	assert.True(t, os.IsNotExist(err), "empty entry directory is removed")

	_, err = b.Open(ctx, "abc123/my file.txt")
	assert.ErrorIs(t, err, once.ErrObjectNotFound)
}

func TestRejectsEscapingKeys(t *testing.T) {
	b, _, _ := newBackend(t)
	ctx := context.Background()

	for _, key := range []string{"", "../x", "abc123/../../x", "/abs", "a//b", "a\\b", "abc123/."} {
		assert.ErrorIs(t, b.Put(ctx, key, strings.NewReader("x")), fs.ErrInvalidKey, key)
		_, err := b.PresignUpload(ctx, key, time.Minute)
		assert.ErrorIs(t, err, fs.ErrInvalidKey, key)
	}
}

func TestPresignedURLsAreAcceptedByHandlers(t *testing.T) {
	b, signer, _ := newBackend(t)
	ctx := context.Background()
	require.NoError(t, b.Put(ctx, "abc123/a.txt", strings.NewReader("payload")))

	raw, err := b.PresignDownload(ctx, "abc123/a.txt", 20*time.Second)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, "http://localhost:8080/_blob/download?"))

	u, err := url.Parse(raw)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	presigned.NewHandlers(b, signer, nil).Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/download?"+u.RawQuery, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "payload", rec.Body.String())

	cred, err := b.PresignUpload(ctx, "abc123/b.txt", time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(cred.URL, "http://localhost:8080/_blob/upload?"))
	assert.Equal(t, "abc123/b.txt", cred.Fields[presigned.KeyParam])
}
