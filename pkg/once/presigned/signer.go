package presigned

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Query parameters of a signed URL
const (
	KeyParam       = "key"
	ExpiresParam   = "expires"
	SignatureParam = "signature"
)

// DefaultExpiration is used when Sign is given no lifetime
const DefaultExpiration = 5 * time.Minute

// Signer generates and validates HMAC-signed expiring URLs
type Signer struct {
	secretKey []byte
	now       func() time.Time
}

// New creates a new Signer with the given options
func New(opts ...Option) *Signer {
	s := &Signer{
		now: time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// IsEnabled returns true if a secret key is set
func (s *Signer) IsEnabled() bool {
	return len(s.secretKey) > 0
}

// Sign returns the query parameters that authorize method on key until
// expiresIn from now.
func (s *Signer) Sign(method, key string, expiresIn time.Duration) (url.Values, error) {
	if !s.IsEnabled() {
		return nil, ErrNoSecretKey
	}
	if expiresIn <= 0 {
		expiresIn = DefaultExpiration
	}

	expiresAt := s.now().Add(expiresIn).Unix()

	q := url.Values{}
	q.Set(KeyParam, key)
	q.Set(ExpiresParam, strconv.FormatInt(expiresAt, 10))
	q.Set(SignatureParam, s.generateSignature(createPayload(method, key, expiresAt)))
	return q, nil
}

// ValidateRequest checks the signed parameters of r and returns the
// object key they authorize.
func (s *Signer) ValidateRequest(r *http.Request) (string, error) {
	query := r.URL.Query()

	key := query.Get(KeyParam)
	if key == "" {
		return "", ErrMissingKey
	}
	signature := query.Get(SignatureParam)
	if signature == "" {
		return "", ErrMissingSignature
	}
	expiresAt, err := strconv.ParseInt(query.Get(ExpiresParam), 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidExpiration, err)
	}

	if err := s.Validate(r.Method, key, signature, expiresAt); err != nil {
		return "", err
	}
	return key, nil
}

// Validate validates the signature and expiration for a method and key
func (s *Signer) Validate(method, key, signature string, expiresAt int64) error {
	if !s.IsEnabled() {
		return ErrNoSecretKey
	}

	if s.now().Unix() > expiresAt {
		return ErrExpired
	}

	expected := s.generateSignature(createPayload(method, key, expiresAt))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return ErrInvalidSignature
	}

	return nil
}

// createPayload creates the signature payload METHOD|KEY|EXPIRES
func createPayload(method, key string, expiresAt int64) string {
	return fmt.Sprintf("%s|%s|%d", method, key, expiresAt)
}

func (s *Signer) generateSignature(payload string) string {
	h := hmac.New(sha256.New, s.secretKey)
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}
