// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package keysource

import (
	"bytes"
	"slices"
	"time"

	"github.com/go-logr/logr"

	"github.com/controlplaneio-fluxcd/drm-keysource/internal/drm"
	"github.com/controlplaneio-fluxcd/drm-keysource/internal/fetch"
	"github.com/controlplaneio-fluxcd/drm-keysource/internal/signer"
)

const (
	// DefaultCryptoPeriodCount is the number of crypto periods requested
	// per rotation batch.
	DefaultCryptoPeriodCount uint32 = 10

	// DefaultMaxAttempts bounds the attempts of one license request.
	DefaultMaxAttempts uint = 5

	// DefaultRetryInterval is the wait before the first retry, doubled
	// on every following retry.
	DefaultRetryInterval = time.Second

	// DefaultGetKeyTimeout bounds the wait for a crypto period key.
	DefaultGetKeyTimeout = 5 * time.Minute
)

// Option configures a Widevine key source.
type Option func(*Widevine)

// WithKeyFetcher sets the transport used to reach the license service.
// The default is an HTTP fetcher.
func WithKeyFetcher(f fetch.KeyFetcher) Option {
	return func(s *Widevine) {
		s.fetcher = f
	}
}

// WithSigner signs every license request.
func WithSigner(rs signer.RequestSigner) Option {
	return func(s *Widevine) {
		s.signer = rs
	}
}

// WithProtectionScheme sets the scheme sent with license requests.
func WithProtectionScheme(scheme drm.ProtectionScheme) Option {
	return func(s *Widevine) {
		s.scheme = scheme
	}
}

// WithTracks sets the track types requested.
func WithTracks(tracks ...drm.TrackType) Option {
	return func(s *Widevine) {
		s.tracks = slices.Clone(tracks)
	}
}

// WithGroupID requests a group license.
func WithGroupID(groupID []byte) Option {
	return func(s *Widevine) {
		s.groupID = bytes.Clone(groupID)
	}
}

// WithCommonSystemPSSH adds a common system record listing all key ids
// of a batch to every key.
func WithCommonSystemPSSH(enabled bool) Option {
	return func(s *Widevine) {
		s.commonPSSH = enabled
	}
}

// WithKeyRotation enables key rotation, requesting cryptoPeriodCount
// periods per batch.
func WithKeyRotation(cryptoPeriodCount uint32) Option {
	return func(s *Widevine) {
		s.cryptoPeriodCount = cryptoPeriodCount
	}
}

// WithKeyPoolCapacity bounds the number of crypto period batches held
// ahead of and behind the consumer. It defaults to the crypto period count.
func WithKeyPoolCapacity(capacity int) Option {
	return func(s *Widevine) {
		s.poolCapacity = capacity
	}
}

// WithGetKeyTimeout bounds the wait of GetCryptoPeriodKey.
func WithGetKeyTimeout(timeout time.Duration) Option {
	return func(s *Widevine) {
		s.getKeyTimeout = timeout
	}
}

// WithRetry sets the attempts of one license request and the wait before
// the first retry.
func WithRetry(maxAttempts uint, initialInterval time.Duration) Option {
	return func(s *Widevine) {
		s.maxAttempts = maxAttempts
		s.retryInterval = initialInterval
	}
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(s *Widevine) {
		s.log = log
	}
}
