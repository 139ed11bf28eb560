package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"github.com/tendant/once/pkg/once"
	"github.com/tendant/once/pkg/once/signature"
)

// Client requests upload tickets and uploads files to a once service
type Client struct {
	baseURL       *url.URL
	secretKey     []byte
	header        string
	signer        *signature.Signer
	httpClient    *http.Client
	retryAttempts int
	retryDelay    time.Duration
	progressFunc  ProgressFunc
	now           func() time.Time
}

// ProgressFunc is called during upload to report progress
// It receives the number of bytes uploaded so far
type ProgressFunc func(bytesUploaded int64)

// Option is a functional option for configuring a Client
type Option func(*Client)

// APIError is a non-2xx answer from the service
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("once: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("once: %d %s", e.StatusCode, e.Message)
}

// ShareResult describes a shared file
type ShareResult struct {
	Ticket         *once.Ticket
	UploadDuration time.Duration
}

// New creates a client for the service at baseURL
func New(baseURL string, secretKey []byte, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", baseURL)
	}
	if len(secretKey) == 0 {
		return nil, errors.New("secret key is required")
	}

	c := &Client{
		baseURL:   u,
		secretKey: secretKey,
		header:    signature.DefaultHeader,
		httpClient: &http.Client{
			Timeout: 30 * time.Minute, // Long timeout for large uploads
		},
		retryAttempts: 3,
		retryDelay:    1 * time.Second,
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}
	c.signer = signature.New(signature.WithSecretKey(c.secretKey), signature.WithHeader(c.header))

	return c, nil
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithSignatureHeader sets the header that carries the request MAC
func WithSignatureHeader(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.header = name
		}
	}
}

// WithRetry configures retry behavior of uploads
func WithRetry(attempts int, delay time.Duration) Option {
	return func(c *Client) {
		if attempts < 1 {
			attempts = 1
		}
		c.retryAttempts = attempts
		c.retryDelay = delay
	}
}

// WithProgress sets a progress callback function
func WithProgress(fn ProgressFunc) Option {
	return func(c *Client) {
		c.progressFunc = fn
	}
}

// WithClock overrides the clock used for request timestamps
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// RequestTicket asks the service for a download link and an upload
// credential for filename.
func (c *Client) RequestTicket(ctx context.Context, filename string) (*once.Ticket, error) {
	q := url.Values{}
	q.Set(once.FilenameParam, filename)
	q.Set(once.TimestampParam, signature.FormatTimestamp(c.now()))

	u := *c.baseURL
	if u.Path == "" {
		u.Path = "/"
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(c.signer.Header(), c.signer.SignRequest(u.Path, q))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ticket request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var body struct {
			Message string `json:"message"`
		}
		if json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body) == nil {
			apiErr.Message = body.Message
		}
		return nil, apiErr
	}

	var ticket once.Ticket
	if err := json.NewDecoder(resp.Body).Decode(&ticket); err != nil {
		return nil, fmt.Errorf("failed to decode ticket: %w", err)
	}
	return &ticket, nil
}

// Upload posts data to the credential as a multipart form: the credential
// fields first, then the content under the "file" field. Failed attempts
// are retried only when data is an io.Seeker.
func (c *Client) Upload(ctx context.Context, cred *once.UploadCredential, filename string, data io.Reader) error {
	seeker, canRetry := data.(io.Seeker)
	attempts := 1
	if canRetry {
		attempts = c.retryAttempts
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			// Wait before retry
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(attempt)):
			}
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return fmt.Errorf("failed to rewind upload: %w", err)
			}
		}

		retry, err := c.upload(ctx, cred, filename, data)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			return err
		}
	}

	return fmt.Errorf("upload failed after %d attempts: %w", attempts, lastErr)
}

func (c *Client) upload(ctx context.Context, cred *once.UploadCredential, filename string, data io.Reader) (retry bool, err error) {
	reader := data
	if c.progressFunc != nil {
		reader = &progressReader{
			reader:   data,
			callback: c.progressFunc,
		}
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(mw, cred.Fields, filepath.Base(filename), reader))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cred.URL, pr)
	if err != nil {
		pr.Close()
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		pr.Close()
		return true, fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()
	// unblocks the form writer when the server answered before reading it all
	pr.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return false, nil
	}

	// Don't retry on client errors (4xx)
	err = fmt.Errorf("upload failed with status: %s", resp.Status)
	return resp.StatusCode >= 500, err
}

func writeForm(mw *multipart.Writer, fields map[string]string, filename string, data io.Reader) error {
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, data); err != nil {
		return err
	}
	return mw.Close()
}

// Share requests a ticket for the file's base name and uploads data to it
func (c *Client) Share(ctx context.Context, filename string, data io.Reader) (*ShareResult, error) {
	name := filepath.Base(filename)
	ticket, err := c.RequestTicket(ctx, name)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	if err := c.Upload(ctx, &ticket.UploadCredential, name, data); err != nil {
		return nil, err
	}

	return &ShareResult{
		Ticket:         ticket,
		UploadDuration: time.Since(started),
	}, nil
}

// progressReader wraps an io.Reader to track upload progress
type progressReader struct {
	reader    io.Reader
	bytesRead int64
	callback  ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.bytesRead += int64(n)
	if pr.callback != nil && n > 0 {
		pr.callback(pr.bytesRead)
	}
	return n, err
}
