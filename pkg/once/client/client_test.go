package client_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/once/pkg/once"
	"github.com/tendant/once/pkg/once/api"
	"github.com/tendant/once/pkg/once/client"
	"github.com/tendant/once/pkg/once/config"
)

var testKey = []byte("client-test-secret")

func newServer(t *testing.T) (*httptest.Server, *config.Runtime) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewUnstartedServer(nil)

	cfg, err := config.Load(
		config.WithSecretKey(testKey),
		config.WithBaseURL("http://"+srv.Listener.Addr().String()),
		config.WithStorageURL("file://"+t.TempDir()),
	)
	require.NoError(t, err)

	rt, err := cfg.BuildService(t.Context(), logger)
	require.NoError(t, err)
	t.Cleanup(rt.Close)

	srv.Config.Handler = api.NewRouter(cfg.RouterConfig(rt, logger))
	srv.Start()
	t.Cleanup(srv.Close)
	return srv, rt
}

func TestShare(t *testing.T) {
	srv, _ := newServer(t)

	var progress int64
	c, err := client.New(srv.URL, testKey, client.WithProgress(func(n int64) {
		atomic.StoreInt64(&progress, n)
	}))
	require.NoError(t, err)

	result, err := c.Share(t.Context(), "/tmp/some dir/hello.txt", strings.NewReader("hello, once"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(result.Ticket.DownloadURL, "/hello.txt"))
	assert.Equal(t, int64(len("hello, once")), atomic.LoadInt64(&progress))

	// the link works exactly once
	resp, err := http.Get(result.Ticket.DownloadURL)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello, once", string(body))

	resp, err = http.Get(result.Ticket.DownloadURL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRequestTicketWrongKey(t *testing.T) {
	srv, rt := newServer(t)

	c, err := client.New(srv.URL, []byte("not-the-key"))
	require.NoError(t, err)

	_, err = c.RequestTicket(t.Context(), "a.txt")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Your request cannot be authorized", apiErr.Message)

	pending, err := rt.Repository.ListEntriesByState(t.Context(), once.EntryStatePending)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRequestTicketStaleClock(t *testing.T) {
	srv, _ := newServer(t)

	c, err := client.New(srv.URL, testKey, client.WithClock(func() time.Time {
		return time.Now().Add(-time.Hour)
	}))
	require.NoError(t, err)

	_, err = c.RequestTicket(t.Context(), "a.txt")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestRequestTicketCustomHeader(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Custom")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"download_url":"http://x/abcdef/a.txt","upload_credential":{"url":"http://x/up","fields":{"key":"abcdef/a.txt"}}}`))
	}))
	defer srv.Close()

	c, err := client.New(srv.URL, testKey, client.WithSignatureHeader("X-Custom"))
	require.NoError(t, err)

	ticket, err := c.RequestTicket(t.Context(), "a.txt")
	require.NoError(t, err)
	assert.NotEmpty(t, got)
	assert.Equal(t, "http://x/abcdef/a.txt", ticket.DownloadURL)
	assert.Equal(t, "abcdef/a.txt", ticket.UploadCredential.Fields["key"])
}

// uploadTarget fails the first failures requests with status, then accepts
func uploadTarget(t *testing.T, failures int32, status int) (*httptest.Server, *int32, *bytes.Buffer) {
	t.Helper()
	var calls int32
	var received bytes.Buffer
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= failures {
			w.WriteHeader(status)
			return
		}
		_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mr := multipart.NewReader(r.Body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if !assert.NoError(t, err) {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if part.FormName() == "file" {
				_, _ = io.Copy(&received, part)
			}
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls, &received
}

func TestUploadRetriesSeekable(t *testing.T) {
	srv, calls, received := uploadTarget(t, 2, http.StatusServiceUnavailable)

	c, err := client.New("http://once.invalid", testKey, client.WithRetry(3, time.Millisecond))
	require.NoError(t, err)

	err = c.Upload(t.Context(), &once.UploadCredential{URL: srv.URL}, "a.txt", bytes.NewReader([]byte("payload")))
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
	assert.Equal(t, "payload", received.String())
}

func TestUploadDoesNotRetryStream(t *testing.T) {
	srv, calls, _ := uploadTarget(t, 1, http.StatusServiceUnavailable)

	c, err := client.New("http://once.invalid", testKey, client.WithRetry(3, time.Millisecond))
	require.NoError(t, err)

	pr, pw := io.Pipe()
	go func() {
		_, _ = pw.Write([]byte("payload"))
		pw.Close()
	}()

	err = c.Upload(t.Context(), &once.UploadCredential{URL: srv.URL}, "a.txt", pr)
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestUploadDoesNotRetryClientError(t *testing.T) {
	srv, calls, _ := uploadTarget(t, 1, http.StatusForbidden)

	c, err := client.New("http://once.invalid", testKey, client.WithRetry(3, time.Millisecond))
	require.NoError(t, err)

	err = c.Upload(t.Context(), &once.UploadCredential{URL: srv.URL}, "a.txt", bytes.NewReader([]byte("payload")))
	assert.ErrorContains(t, err, "403")
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestUploadCanceled(t *testing.T) {
	srv, _, _ := uploadTarget(t, 5, http.StatusServiceUnavailable)

	c, err := client.New("http://once.invalid", testKey, client.WithRetry(3, time.Hour))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	err = c.Upload(ctx, &once.UploadCredential{URL: srv.URL}, "a.txt", bytes.NewReader([]byte("payload")))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewValidates(t *testing.T) {
	_, err := client.New("not a url", testKey)
	assert.Error(t, err)

	_, err = client.New("http://localhost", nil)
	assert.Error(t, err)
}
