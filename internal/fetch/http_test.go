// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/onsi/gomega"

	"github.com/controlplaneio-fluxcd/drm-keysource/internal/drm"
)

func TestHTTPFetcher(t *testing.T) {
	requestBody := []byte(`{"request":"e30=","signature":"c2ln","signer":"widevine_test"}`)

	t.Run("posts the body with default options", func(t *testing.T) {
		g := NewWithT(t)

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			g.Expect(r.Method).To(Equal(http.MethodPost))
			g.Expect(r.UserAgent()).To(Equal(DefaultUserAgent))
			g.Expect(r.Header.Get("Content-Type")).To(Equal("application/json"))
			body, _ := io.ReadAll(r.Body)
			g.Expect(body).To(Equal(requestBody))
			_, _ = w.Write([]byte(`{"response":"e30="}`))
		}))
		defer server.Close()

		data, err := NewHTTPFetcher().FetchKeys(context.TODO(), server.URL, requestBody)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(string(data)).To(Equal(`{"response":"e30="}`))
	})

	t.Run("applies options over TLS", func(t *testing.T) {
		g := NewWithT(t)

		server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			g.Expect(r.UserAgent()).To(Equal("packager/2.0"))
			_, _ = w.Write([]byte("ok"))
		}))
		defer server.Close()

		f := NewHTTPFetcher(
			FetchOpt.WithUserAgent("packager/2.0"),
			FetchOpt.WithInsecureSkipVerify(true),
			FetchOpt.WithRetries(0),
		)
		data, err := f.FetchKeys(context.TODO(), server.URL, requestBody)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(string(data)).To(Equal("ok"))
	})

	t.Run("reports slow servers as timeouts", func(t *testing.T) {
		g := NewWithT(t)

		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer server.Close()
		defer close(release)

		f := NewHTTPFetcher(FetchOpt.WithTimeout(50*time.Millisecond), FetchOpt.WithRetries(0))
		_, err := f.FetchKeys(context.TODO(), server.URL, requestBody)
		g.Expect(err).To(MatchError(drm.ErrTimeout))
	})

	t.Run("reports gateway timeouts as timeouts", func(t *testing.T) {
		g := NewWithT(t)

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusGatewayTimeout)
		}))
		defer server.Close()

		f := NewHTTPFetcher(FetchOpt.WithRetries(0))
		_, err := f.FetchKeys(context.TODO(), server.URL, requestBody)
		g.Expect(err).To(MatchError(drm.ErrTimeout))
	})

	t.Run("retries server errors at the connection level", func(t *testing.T) {
		g := NewWithT(t)

		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte("ok"))
		}))
		defer server.Close()

		f := NewHTTPFetcher(FetchOpt.WithRetries(1), FetchOpt.WithRetryWait(time.Millisecond, time.Millisecond))
		data, err := f.FetchKeys(context.TODO(), server.URL, requestBody)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(string(data)).To(Equal("ok"))
		g.Expect(calls.Load()).To(BeEquivalentTo(2))
	})

	t.Run("fails on non-200 status", func(t *testing.T) {
		g := NewWithT(t)

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer server.Close()

		_, err := NewHTTPFetcher().FetchKeys(context.TODO(), server.URL, requestBody)
		g.Expect(err).To(MatchError(drm.ErrTransport))
		g.Expect(err).ToNot(MatchError(drm.ErrTimeout))
		g.Expect(err.Error()).To(ContainSubstring("status 403"))
	})

	t.Run("fails on empty body", func(t *testing.T) {
		g := NewWithT(t)

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		_, err := NewHTTPFetcher().FetchKeys(context.TODO(), server.URL, requestBody)
		g.Expect(err).To(MatchError(drm.ErrTransport))
		g.Expect(err.Error()).To(ContainSubstring("response body is empty"))
	})

	t.Run("reports cancellation", func(t *testing.T) {
		g := NewWithT(t)

		ctx, cancel := context.WithCancel(context.Background())
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cancel()
			<-r.Context().Done()
		}))
		defer server.Close()

		_, err := NewHTTPFetcher(FetchOpt.WithRetries(0)).FetchKeys(ctx, server.URL, requestBody)
		g.Expect(err).To(MatchError(drm.ErrCanceled))
	})

	t.Run("requires https for remote hosts", func(t *testing.T) {
		g := NewWithT(t)

		_, err := NewHTTPFetcher().FetchKeys(context.TODO(), "http://license.example.com/cenc", requestBody)
		g.Expect(err).To(MatchError(drm.ErrTransport))
		g.Expect(err.Error()).To(ContainSubstring("HTTPS scheme is required"))

		_, err = NewHTTPFetcher(FetchOpt.WithLocalhost(false)).FetchKeys(context.TODO(), "http://localhost:1/cenc", requestBody)
		g.Expect(err.Error()).To(ContainSubstring("HTTPS scheme is required"))
	})
}

func TestKeyFetcherFunc(t *testing.T) {
	g := NewWithT(t)

	var f KeyFetcher = KeyFetcherFunc(func(_ context.Context, serverURL string, body []byte) ([]byte, error) {
		return append([]byte(serverURL), body...), nil
	})
	data, err := f.FetchKeys(context.TODO(), "a", []byte("b"))
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(string(data)).To(Equal("ab"))
}
