package auth

import "errors"

// Authentication errors. All map to UNAUTHENTICATED; the message does not
// confirm whether a key ID exists.
var (
	ErrMissingKey       = errors.New("API key required in x-api-key metadata")
	ErrInvalidKeyFormat = errors.New("invalid API key format")
	ErrUnknownKey       = errors.New("unknown key ID")
	ErrInvalidKey       = errors.New("invalid API key")
)
