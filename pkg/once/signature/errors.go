package signature

import "errors"

var (
	// ErrNoSecretKey is returned when signing is attempted without a key
	ErrNoSecretKey = errors.New("secret key not configured")

	// ErrMissingSignature is returned when the signature header is absent
	ErrMissingSignature = errors.New("missing signature")

	// ErrMalformedSignature is returned when the header is not valid base64
	ErrMalformedSignature = errors.New("malformed signature")

	// ErrInvalidSignature is returned when the MAC does not match
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrMissingTimestamp is returned when the timestamp parameter is absent
	ErrMissingTimestamp = errors.New("missing timestamp")

	// ErrInvalidTimestamp is returned when the timestamp cannot be parsed
	ErrInvalidTimestamp = errors.New("invalid timestamp")

	// ErrTimestampOutOfWindow is returned when the timestamp is too old or in the future
	ErrTimestampOutOfWindow = errors.New("timestamp outside tolerance window")

	// ErrReplayed is returned when an identical signed request was already accepted
	ErrReplayed = errors.New("request already used")
)

// IsAuthError reports whether err is a signature or timestamp failure.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrMissingSignature) ||
		errors.Is(err, ErrMalformedSignature) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrMissingTimestamp) ||
		errors.Is(err, ErrInvalidTimestamp) ||
		errors.Is(err, ErrTimestampOutOfWindow) ||
		errors.Is(err, ErrReplayed)
}
