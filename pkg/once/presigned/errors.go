package presigned

import "errors"

// Signature validation errors
var (
	// ErrNoSecretKey is returned when attempting to sign URLs without a configured secret key
	ErrNoSecretKey = errors.New("presigned: no secret key configured")

	// ErrMissingKey is returned when the key query parameter is missing
	ErrMissingKey = errors.New("presigned: missing key parameter")

	// ErrMissingSignature is returned when the signature query parameter is missing
	ErrMissingSignature = errors.New("presigned: missing signature parameter")

	// ErrInvalidExpiration is returned when the expires parameter is missing or unparsable
	ErrInvalidExpiration = errors.New("presigned: invalid expires parameter")

	// ErrExpired is returned when the presigned URL has expired
	ErrExpired = errors.New("presigned: URL has expired")

	// ErrInvalidSignature is returned when the signature is invalid
	ErrInvalidSignature = errors.New("presigned: invalid signature")
)

// IsAuthError returns true if the error is a signature validation error
func IsAuthError(err error) bool {
	return errors.Is(err, ErrMissingSignature) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrInvalidSignature)
}

// IsMalformed returns true if the signed parameters cannot be read
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMissingKey) ||
		errors.Is(err, ErrInvalidExpiration)
}
