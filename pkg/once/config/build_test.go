package config

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/once/pkg/once"
	"github.com/tendant/once/pkg/once/api"
	"github.com/tendant/once/pkg/once/signature"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildServiceMemory(t *testing.T) {
	cfg, err := Load(WithSecretKey([]byte("k")))
	require.NoError(t, err)

	rt, err := cfg.BuildService(t.Context(), discardLogger())
	require.NoError(t, err)
	defer rt.Close()

	assert.NotNil(t, rt.Service)
	assert.NotNil(t, rt.Metrics)
	assert.Nil(t, rt.BlobHandlers)
}

func TestBuildServiceMemoryStorageWarning(t *testing.T) {
	tests := []struct {
		env  string
		warn bool
	}{
		{"development", true},
		{"production", true},
		{"testing", false},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg, err := Load(WithSecretKey([]byte("k")), WithEnvironment(tt.env))
			require.NoError(t, err)

			var buf bytes.Buffer
			rt, err := cfg.BuildService(t.Context(), slog.New(slog.NewTextHandler(&buf, nil)))
			require.NoError(t, err)
			defer rt.Close()

			assert.Equal(t, tt.warn, strings.Contains(buf.String(), "memory storage issues credentials"))
		})
	}
}

func TestBuildServiceRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg, err := Load(WithSecretKey([]byte("k")), WithDatabaseURL("redis://"+mr.Addr()))
	require.NoError(t, err)

	rt, err := cfg.BuildService(t.Context(), discardLogger())
	require.NoError(t, err)
	defer rt.Close()

	entries, err := rt.Repository.ListEntriesByState(t.Context(), once.EntryStatePending)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBuildServiceBadMaskPattern(t *testing.T) {
	cfg, err := Load(WithSecretKey([]byte("k")), WithMaskedUserAgents("("))
	require.NoError(t, err)

	_, err = cfg.BuildService(t.Context(), discardLogger())
	assert.Error(t, err)
}

// TestFilesystemRoundTrip drives ticket, upload, delivery and sweep through
// the HTTP router with local file storage.
func TestFilesystemRoundTrip(t *testing.T) {
	secret := []byte("round-trip-secret")
	srv := httptest.NewUnstartedServer(nil)
	baseURL := "http://" + srv.Listener.Addr().String() + "/"

	cfg, err := Load(
		WithSecretKey(secret),
		WithBaseURL(baseURL),
		WithStorageURL("file://"+t.TempDir()),
	)
	require.NoError(t, err)

	rt, err := cfg.BuildService(t.Context(), discardLogger())
	require.NoError(t, err)
	defer rt.Close()
	require.NotNil(t, rt.BlobHandlers)

	srv.Config.Handler = api.NewRouter(cfg.RouterConfig(rt, discardLogger()))
	srv.Start()
	defer srv.Close()

	noRedirect := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	// ticket
	q := url.Values{}
	q.Set(once.FilenameParam, "notes.txt")
	q.Set(once.TimestampParam, signature.FormatTimestamp(time.Now()))
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/?"+q.Encode(), nil)
	require.NoError(t, err)
	req.Header.Set(signature.DefaultHeader, signature.New(signature.WithSecretKey(secret)).SignRequest("/", q))
	resp, err := noRedirect.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ticket once.Ticket
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ticket))
	resp.Body.Close()
	assert.True(t, strings.HasPrefix(ticket.UploadCredential.URL, srv.URL+api.BlobPath+"/upload?"))

	// upload
	body, contentType := multipartUpload(t, ticket.UploadCredential.Fields, "notes.txt", "remember the milk")
	resp, err = noRedirect.Post(ticket.UploadCredential.URL, contentType, body)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// a link preview does not consume the entry
	req, err = http.NewRequest(http.MethodGet, ticket.DownloadURL, nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "Slackbot-LinkExpanding 1.0")
	resp, err = noRedirect.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// first real download redirects to the file
	resp, err = noRedirect.Get(ticket.DownloadURL)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
	location := resp.Header.Get("Location")

	resp, err = http.Get(location)
	require.NoError(t, err)
	content, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "remember the milk", string(content))

	// second download is gone
	resp, err = noRedirect.Get(ticket.DownloadURL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// sweep removes the served file
	result, err := rt.Service.Sweep(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)

	resp, err = http.Get(location)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
