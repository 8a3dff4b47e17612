// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Backend sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., email taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates a request that failed validation.
	ErrInvalidInput = errors.New("invalid input")
)

// Client-side sentinels, one per Kind.
var (
	// ErrCorruptState indicates a malformed credential found in local storage.
	ErrCorruptState = errors.New("corrupt local credential state")

	// ErrExpiredCredential indicates a stored access token past its expiry.
	ErrExpiredCredential = errors.New("expired credential")

	// ErrAuthenticationRequired indicates there is no usable session and refresh is impossible.
	ErrAuthenticationRequired = errors.New("authentication required")

	// ErrRefreshFailed indicates the refresh endpoint rejected the token or answered malformed.
	ErrRefreshFailed = errors.New("refresh failed")

	// ErrRequestFailed indicates a non-2xx response other than an authorization failure.
	ErrRequestFailed = errors.New("request failed")

	// ErrTransport indicates the request never produced an HTTP response.
	ErrTransport = errors.New("transport error")
)
