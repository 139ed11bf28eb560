package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"time"
)

const (
	// DefaultHeader carries the base64 MAC
	DefaultHeader = "x-once-signature"

	// DefaultTolerance is the accepted age of a request timestamp
	DefaultTolerance = 5 * time.Second

	// TimestampParam is the query parameter holding the request timestamp
	TimestampParam = "t"
)

// Signer signs and verifies requests with a shared secret key.
type Signer struct {
	secretKey []byte
	header    string
	tolerance time.Duration
	replay    *ReplayCache
	now       func() time.Time
}

// New creates a Signer
func New(opts ...Option) *Signer {
	s := &Signer{
		header:    DefaultHeader,
		tolerance: DefaultTolerance,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsEnabled reports whether a secret key is configured
func (s *Signer) IsEnabled() bool {
	return len(s.secretKey) > 0
}

// Header returns the name of the signature header
func (s *Signer) Header() string {
	return s.header
}

// Tolerance returns the accepted timestamp age
func (s *Signer) Tolerance() time.Duration {
	return s.tolerance
}

// Canonicalize returns the byte string that gets signed for a request.
// Query keys are sorted and values percent-encoded by url.Values.Encode.
func Canonicalize(path string, query url.Values) string {
	return path + "?" + query.Encode()
}

// Sign computes HMAC-SHA256 of canonical under key.
func Sign(canonical string, key []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(canonical))
	return mac.Sum(nil)
}

// Verify reports whether supplied is the MAC of canonical under key.
func Verify(canonical string, key, supplied []byte) bool {
	return hmac.Equal(Sign(canonical, key), supplied)
}

// VerifyHeader checks a base64 header value against canonical.
func VerifyHeader(canonical string, key []byte, headerValue string) error {
	if headerValue == "" {
		return ErrMissingSignature
	}
	supplied, err := base64.StdEncoding.DecodeString(headerValue)
	if err != nil {
		return ErrMalformedSignature
	}
	if !Verify(canonical, key, supplied) {
		return ErrInvalidSignature
	}
	return nil
}

// SignRequest returns the base64 header value for a request.
func (s *Signer) SignRequest(path string, query url.Values) string {
	return base64.StdEncoding.EncodeToString(Sign(Canonicalize(path, query), s.secretKey))
}

// CheckTimestamp validates the timestamp parameter against the clock.
func (s *Signer) CheckTimestamp(ts string) error {
	if ts == "" {
		return ErrMissingTimestamp
	}
	if _, err := ParseTimestamp(ts); err != nil {
		return err
	}
	if !ValidateTimestamp(ts, s.now(), s.tolerance) {
		return ErrTimestampOutOfWindow
	}
	return nil
}

// VerifyRequest checks the MAC of a request and, when a replay cache is
// configured, rejects a MAC that was already accepted.
func (s *Signer) VerifyRequest(path string, query url.Values, headerValue string) error {
	if !s.IsEnabled() {
		return ErrNoSecretKey
	}
	if err := VerifyHeader(Canonicalize(path, query), s.secretKey, headerValue); err != nil {
		return err
	}
	if s.replay != nil {
		// keyed on the decoded MAC so alternate encodings of it collide
		mac, _ := base64.StdEncoding.DecodeString(headerValue)
		if s.replay.Remember(string(mac)) {
			return ErrReplayed
		}
	}
	return nil
}
