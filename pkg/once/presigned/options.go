package presigned

import "time"

// Option is a functional option for configuring a Signer
type Option func(*Signer)

// WithSecretKey sets the secret key used for HMAC signing
func WithSecretKey(key []byte) Option {
	return func(s *Signer) {
		s.secretKey = key
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		s.now = now
	}
}
