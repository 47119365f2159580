// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package testutils

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/controlplaneio-fluxcd/drm-keysource/internal/drm"
)

// Reply is a scripted fetcher result.
type Reply struct {
	Body []byte
	Err  error
}

// MockFetcher is a key fetcher serving scripted replies or a handler.
// It records every request and can be mounted as an http.Handler.
type MockFetcher struct {
	mu      sync.Mutex
	replies []Reply
	handler func(request []byte) Reply
	bodies  [][]byte
	urls    []string
}

// NewMockFetcher returns a fetcher serving replies in order. Calls past
// the last reply fail with drm.ErrTransport.
func NewMockFetcher(replies ...Reply) *MockFetcher {
	return &MockFetcher{replies: replies}
}

// NewHandlerFetcher returns a fetcher computing replies from the
// unsigned request.
func NewHandlerFetcher(handler func(request []byte) Reply) *MockFetcher {
	return &MockFetcher{handler: handler}
}

// NewRotationFetcher returns a fetcher answering every request with mock
// keys for the requested crypto periods, or the non-rotation mock keys.
func NewRotationFetcher() *MockFetcher {
	return NewHandlerFetcher(func(request []byte) Reply {
		window := gjson.GetBytes(request, "crypto_period_count")
		if !window.Exists() {
			return Reply{Body: LicenseResponse("OK", ModernTracks(MockTrackTypes...))}
		}
		first := uint32(gjson.GetBytes(request, "first_crypto_period_index").Uint())
		count := uint32(window.Uint())
		return Reply{Body: LicenseResponse("OK", RotationTracks(first, count, MockTrackTypes...))}
	})
}

// FetchKeys records the request and returns the next reply.
func (m *MockFetcher) FetchKeys(ctx context.Context, serverURL string, body []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(drm.ErrCanceled, err)
	}

	m.mu.Lock()
	call := len(m.bodies)
	m.bodies = append(m.bodies, append([]byte(nil), body...))
	m.urls = append(m.urls, serverURL)
	handler := m.handler
	var reply Reply
	switch {
	case handler != nil:
	case call < len(m.replies):
		reply = m.replies[call]
	default:
		reply = Reply{Err: errors.Join(drm.ErrTransport, errors.New("unexpected request"))}
	}
	m.mu.Unlock()

	if handler != nil {
		reply = handler(UnsignedRequest(body))
	}
	return reply.Body, reply.Err
}

// Calls returns the number of requests received.
func (m *MockFetcher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bodies)
}

// Bodies returns the request bodies received.
func (m *MockFetcher) Bodies() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.bodies...)
}

// URLs returns the server URLs requested.
func (m *MockFetcher) URLs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.urls...)
}

// ServeHTTP serves the mock over HTTP, fetch errors are replied as 500.
func (m *MockFetcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	data, err := m.FetchKeys(r.Context(), r.URL.String(), body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_, _ = w.Write(data)
}

// UnsignedRequest returns the request carried by a signed envelope, or
// body itself when it is not signed.
func UnsignedRequest(body []byte) []byte {
	request := gjson.GetBytes(body, "request")
	if !request.Exists() {
		return body
	}
	raw, err := base64.StdEncoding.DecodeString(request.String())
	if err != nil {
		return body
	}
	return raw
}
