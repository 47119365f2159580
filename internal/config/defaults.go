// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package config

import (
	"github.com/controlplaneio-fluxcd/drm-keysource/internal/drm"
	"github.com/controlplaneio-fluxcd/drm-keysource/internal/fetch"
	"github.com/controlplaneio-fluxcd/drm-keysource/internal/keysource"
)

// ApplyDefaults fills the fields left empty in the configuration.
func (c *ConfigSpec) ApplyDefaults() {
	if c.ProtectionScheme == "" {
		c.ProtectionScheme = drm.SchemeCENC.String()
	}
	if len(c.Tracks) == 0 {
		for _, t := range drm.DefaultTracks() {
			c.Tracks = append(c.Tracks, string(t))
		}
	}

	if c.Retry == nil {
		c.Retry = &RetrySpec{}
	}
	c.Retry.ApplyDefaults()

	if c.Fetcher == nil {
		c.Fetcher = &FetcherSpec{}
	}
	c.Fetcher.ApplyDefaults()

	if c.KeyRotation != nil {
		c.KeyRotation.ApplyDefaults()
	}
}

// ApplyDefaults fills the fields left empty in the retry configuration.
func (r *RetrySpec) ApplyDefaults() {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = keysource.DefaultMaxAttempts
	}
	if r.InitialInterval.Duration <= 0 {
		r.InitialInterval.Duration = keysource.DefaultRetryInterval
	}
}

// ApplyDefaults fills the fields left empty in the fetcher configuration.
func (f *FetcherSpec) ApplyDefaults() {
	if f.Timeout.Duration <= 0 {
		f.Timeout.Duration = fetch.DefaultTimeout
	}
	if f.Retries <= 0 {
		f.Retries = 2
	}
	if f.UserAgent == "" {
		f.UserAgent = fetch.DefaultUserAgent
	}
}

// ApplyDefaults fills the fields left empty in the rotation configuration.
func (k *KeyRotationSpec) ApplyDefaults() {
	if k.CryptoPeriodCount == 0 {
		k.CryptoPeriodCount = keysource.DefaultCryptoPeriodCount
	}
	if k.KeyPoolCapacity <= 0 {
		k.KeyPoolCapacity = int(k.CryptoPeriodCount)
	}
	if k.GetKeyTimeout.Duration <= 0 {
		k.GetKeyTimeout.Duration = keysource.DefaultGetKeyTimeout
	}
}
