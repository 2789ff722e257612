package domain

import "errors"

// Error kinds surfaced by the service layer. The gateway maps them to status codes.
var (
	ErrNotFound       = errors.New("license not found")
	ErrConflict       = errors.New("license key already exists")
	ErrAuthentication = errors.New("invalid administrator secret")
	ErrAuthorization  = errors.New("invalid or expired token")
	ErrRateLimited    = errors.New("rate limit exceeded")
	ErrInvalidInput   = errors.New("invalid input")
)
