// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package fetch

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/controlplaneio-fluxcd/drm-keysource/internal/drm"
)

// DefaultTimeout is the time allowed for a single license exchange,
// including connection level retries.
const DefaultTimeout = 60 * time.Second

// DefaultUserAgent is sent with every license request.
const DefaultUserAgent = "drm-keysource/1.0"

// httpOptions holds the configuration of the HTTP fetcher.
type httpOptions struct {
	timeout            time.Duration
	retries            int
	retryWaitMin       time.Duration
	retryWaitMax       time.Duration
	allowLocalhost     bool
	userAgent          string
	insecureSkipVerify bool
	logger             logr.Logger
}

// Option configures an HTTPFetcher.
type Option func(*httpOptions)

// FetchOpt contains options for NewHTTPFetcher.
var FetchOpt optionBuilder

// optionBuilder is the internal builder for Option functions.
type optionBuilder struct{}

// WithTimeout sets the deadline of a single license exchange.
func (optionBuilder) WithTimeout(timeout time.Duration) Option {
	return func(opts *httpOptions) {
		opts.timeout = timeout
	}
}

// WithRetries sets the number of connection level retries.
func (optionBuilder) WithRetries(retries int) Option {
	return func(opts *httpOptions) {
		opts.retries = retries
	}
}

// WithRetryWait sets the bounds of the wait between connection level retries.
func (optionBuilder) WithRetryWait(minWait, maxWait time.Duration) Option {
	return func(opts *httpOptions) {
		opts.retryWaitMin = minWait
		opts.retryWaitMax = maxWait
	}
}

// WithLocalhost allows plain HTTP connections to localhost addresses.
func (optionBuilder) WithLocalhost(allow bool) Option {
	return func(opts *httpOptions) {
		opts.allowLocalhost = allow
	}
}

// WithUserAgent sets the User-Agent header.
func (optionBuilder) WithUserAgent(userAgent string) Option {
	return func(opts *httpOptions) {
		opts.userAgent = userAgent
	}
}

// WithInsecureSkipVerify skips TLS certificate verification (for testing).
func (optionBuilder) WithInsecureSkipVerify(skip bool) Option {
	return func(opts *httpOptions) {
		opts.insecureSkipVerify = skip
	}
}

// WithLogger sets the logger used for connection level retries.
func (optionBuilder) WithLogger(logger logr.Logger) Option {
	return func(opts *httpOptions) {
		opts.logger = logger
	}
}

// HTTPFetcher posts license requests to an HTTPS key server.
type HTTPFetcher struct {
	client  *retryablehttp.Client
	options httpOptions
}

// NewHTTPFetcher returns a fetcher with the given options applied.
func NewHTTPFetcher(opts ...Option) *HTTPFetcher {
	options := httpOptions{
		timeout:        DefaultTimeout,
		retries:        2,
		retryWaitMin:   2 * time.Second,
		retryWaitMax:   5 * time.Second,
		userAgent:      DefaultUserAgent,
		allowLocalhost: true,
		logger:         logr.Discard(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	client := retryablehttp.NewClient()
	client.RetryMax = options.retries
	client.RetryWaitMin = options.retryWaitMin
	client.RetryWaitMax = options.retryWaitMax
	client.Logger = leveledLogger{options.logger}
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if options.insecureSkipVerify {
		client.HTTPClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &HTTPFetcher{client: client, options: options}
}

// FetchKeys posts body to serverURL and returns the response body.
// Timeouts of the exchange and 408 or 504 replies are reported as
// drm.ErrTimeout, cancellation of ctx as drm.ErrCanceled.
func (f *HTTPFetcher) FetchKeys(ctx context.Context, serverURL string, body []byte) ([]byte, error) {
	if err := f.checkURL(serverURL); err != nil {
		return nil, err
	}

	reqCtx := ctx
	if f.options.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, f.options.timeout)
		defer cancel()
	}

	req, err := retryablehttp.NewRequestWithContext(reqCtx, http.MethodPost, serverURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %w", drm.ErrTransport, err)
	}
	req.Header.Set("User-Agent", f.options.userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		switch {
		case ctx.Err() != nil:
			return nil, fmt.Errorf("%w: %w", drm.ErrCanceled, ctx.Err())
		case isTimeout(err):
			return nil, fmt.Errorf("%w: %w", drm.ErrTimeout, err)
		default:
			return nil, fmt.Errorf("%w: %w", drm.ErrTransport, err)
		}
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return nil, fmt.Errorf("%w: server replied with status %d", drm.ErrTimeout, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: server replied with status %d", drm.ErrTransport, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: failed to read response body: %w", drm.ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: failed to read response body: %w", drm.ErrTransport, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: response body is empty", drm.ErrTransport)
	}
	return data, nil
}

// checkURL enforces HTTPS unless connecting to an allowed localhost.
func (f *HTTPFetcher) checkURL(rawURL string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: invalid URL: %w", drm.ErrTransport, err)
	}

	isLocalhost := strings.EqualFold(parsedURL.Hostname(), "localhost") ||
		parsedURL.Hostname() == "127.0.0.1" ||
		parsedURL.Hostname() == "::1"

	if !strings.EqualFold(parsedURL.Scheme, "https") && (!isLocalhost || !f.options.allowLocalhost) {
		return fmt.Errorf("%w: HTTPS scheme is required", drm.ErrTransport)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// leveledLogger adapts logr to the retryablehttp logging interface.
type leveledLogger struct {
	log logr.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...any) {
	l.log.Error(nil, msg, keysAndValues...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...any) {
	l.log.V(1).Info(msg, keysAndValues...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...any) {
	l.log.V(2).Info(msg, keysAndValues...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...any) {
	l.log.Info(msg, keysAndValues...)
}
