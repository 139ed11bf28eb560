//go:build integration

package s3_test

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	s3storage "github.com/tendant/once/pkg/once/storage/s3"
)

// TestBackendWithMinIO requires a running MinIO server:
// docker run -p 9000:9000 minio/minio server /data
func TestBackendWithMinIO(t *testing.T) {
	if os.Getenv("MINIO_INTEGRATION_TEST") == "" {
		t.Skip("Skipping MinIO integration test. Set MINIO_INTEGRATION_TEST=1 to run.")
	}

	ctx := context.Background()
	backend, err := s3storage.New(ctx, s3storage.Config{
		Region:                 "us-east-1",
		Bucket:                 "once-test-" + time.Now().Format("20060102150405"),
		AccessKeyID:            "minioadmin",
		SecretAccessKey:        "minioadmin",
		Endpoint:               "http://localhost:9000",
		UsePathStyle:           true,
		CreateBucketIfNotExist: true,
	})
	require.NoError(t, err)

	objectName := "abc123/report.txt"
	content := "delivered once"

	cred, err := backend.PresignUpload(ctx, objectName, time.Minute)
	require.NoError(t, err)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range cred.Fields {
		require.NoError(t, w.WriteField(k, v))
	}
	part, err := w.CreateFormFile("file", "report.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	resp, err := http.Post(cred.URL, w.FormDataContentType(), &body)
	require.NoError(t, err)
	resp.Body.Close()
	require.Less(t, resp.StatusCode, 300, resp.Status)

	location, err := backend.PresignDownload(ctx, objectName, 20*time.Second)
	require.NoError(t, err)

	resp, err = http.Get(location)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, content, string(data))

	require.NoError(t, backend.Delete(ctx, objectName))

	resp, err = http.Get(location)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
