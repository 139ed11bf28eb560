package signature

import "time"

// Option configures a Signer
type Option func(*Signer)

// WithSecretKey sets the shared HMAC key
func WithSecretKey(key []byte) Option {
	return func(s *Signer) {
		s.secretKey = key
	}
}

// WithHeader sets the header name carrying the MAC
func WithHeader(name string) Option {
	return func(s *Signer) {
		if name != "" {
			s.header = name
		}
	}
}

// WithTolerance sets how old a timestamp may be
func WithTolerance(d time.Duration) Option {
	return func(s *Signer) {
		if d > 0 {
			s.tolerance = d
		}
	}
}

// WithReplayCache rejects exact re-sends of accepted requests
func WithReplayCache(cache *ReplayCache) Option {
	return func(s *Signer) {
		s.replay = cache
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		s.now = now
	}
}
