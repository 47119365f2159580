// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package drm

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a track label or key id is not present
// in the current batch.
var ErrNotFound = errors.New("key not found")

// ErrInvalidArgument is returned when a caller supplies an argument the
// key source cannot serve.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrCryptoPeriodCollected is returned when the requested crypto period
// is older than the oldest batch still held by the key pool.
var ErrCryptoPeriodCollected = fmt.Errorf("%w: crypto period already garbage collected", ErrInvalidArgument)

// ErrResourceExhausted is returned when waiting for a crypto period
// exceeds the configured timeout.
var ErrResourceExhausted = errors.New("resource exhausted")

// ErrCanceled is returned to callers blocked on a key source that is closed.
var ErrCanceled = errors.New("key source canceled")

// ErrTransport is returned when the key fetcher fails for a reason
// other than a timeout.
var ErrTransport = errors.New("key fetch failed")

// ErrTimeout is returned when the key fetcher times out.
var ErrTimeout = fmt.Errorf("%w: timed out", ErrTransport)

// ErrServer is returned when the license service rejects the request
// or replies with a response that cannot be decoded.
var ErrServer = errors.New("license server error")

// ErrTransientServer is returned when the license service reports
// a temporary condition that is safe to retry.
var ErrTransientServer = fmt.Errorf("%w: transient", ErrServer)

// ErrMalformedResponse is returned when the license response is not valid.
var ErrMalformedResponse = fmt.Errorf("%w: malformed response", ErrServer)

// ErrInternal is returned when a local operation such as request
// signing fails.
var ErrInternal = errors.New("internal error")

// ErrParsePSSH is returned when init data does not contain valid PSSH boxes.
var ErrParsePSSH = fmt.Errorf("%w: failed to parse PSSH boxes", ErrInvalidArgument)

// IsNotFound reports whether err is a missing key error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidArgument reports whether err is an invalid argument error,
// including crypto periods that were already garbage collected.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsRetryable reports whether err may succeed if the same request is
// sent again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrTransientServer)
}

// IsServerError reports whether err originates from the license service.
func IsServerError(err error) bool {
	return errors.Is(err, ErrServer)
}

// IsCanceled reports whether err is the result of closing the key source.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// ServerStatusError wraps the status string returned by the license service.
func ServerStatusError(status string) error {
	return fmt.Errorf("%w: status %q", ErrServer, status)
}

// TransientStatusError wraps a retryable status returned by the license service.
func TransientStatusError(status string) error {
	return fmt.Errorf("%w: status %q", ErrTransientServer, status)
}

// MalformedResponseError wraps a response decoding failure.
func MalformedResponseError(err error) error {
	return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
}

// SigningError wraps a request signer failure.
func SigningError(err error) error {
	return fmt.Errorf("%w: failed to sign request: %w", ErrInternal, err)
}
