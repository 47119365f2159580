// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

// Package fetch provides the transport used to exchange license
// messages with the key server.
package fetch

import "context"

// KeyFetcher sends a license request body to a key server and returns
// the raw response body. Implementations report timeouts with an error
// matching drm.ErrTimeout and any other failure with drm.ErrTransport.
type KeyFetcher interface {
	FetchKeys(ctx context.Context, serverURL string, body []byte) ([]byte, error)
}

// KeyFetcherFunc adapts a function to the KeyFetcher interface.
type KeyFetcherFunc func(ctx context.Context, serverURL string, body []byte) ([]byte, error)

// FetchKeys calls f.
func (f KeyFetcherFunc) FetchKeys(ctx context.Context, serverURL string, body []byte) ([]byte, error) {
	return f(ctx, serverURL, body)
}
