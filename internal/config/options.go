// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package config

import (
	"encoding/hex"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/controlplaneio-fluxcd/drm-keysource/internal/drm"
	"github.com/controlplaneio-fluxcd/drm-keysource/internal/fetch"
	"github.com/controlplaneio-fluxcd/drm-keysource/internal/keysource"
	"github.com/controlplaneio-fluxcd/drm-keysource/internal/signer"
)

// NewSigner returns the configured request signer, or nil when requests
// are sent unsigned.
func (c *ConfigSpec) NewSigner() (signer.RequestSigner, error) {
	s := c.Signer
	if s == nil {
		return nil, nil
	}

	switch s.Type {
	case SignerTypeAES:
		return signer.NewAESSignerFromHex(s.Name, s.AESKey, s.AESIV)
	case SignerTypeRSA:
		return signer.NewRSASignerFromFile(s.Name, s.KeyFile)
	case SignerTypeEd25519:
		keySet, err := signer.KeySetFromFile(s.KeyFile)
		if err != nil {
			return nil, err
		}
		if s.Name != "" {
			keySet.Signer = s.Name
		}
		return signer.NewEd25519Signer(keySet)
	default:
		return nil, fmt.Errorf("unsupported signer type '%s'", s.Type)
	}
}

// NewKeyFetcher returns the HTTP fetcher described by the configuration.
func (c *ConfigSpec) NewKeyFetcher(log logr.Logger) *fetch.HTTPFetcher {
	f := c.Fetcher
	if f == nil {
		f = &FetcherSpec{}
		f.ApplyDefaults()
	}
	return fetch.NewHTTPFetcher(
		fetch.FetchOpt.WithTimeout(f.Timeout.Duration),
		fetch.FetchOpt.WithRetries(f.Retries),
		fetch.FetchOpt.WithUserAgent(f.UserAgent),
		fetch.FetchOpt.WithInsecureSkipVerify(f.InsecureSkipVerify),
		fetch.FetchOpt.WithLogger(log),
	)
}

// KeySourceOptions maps the configuration onto Widevine key source options.
// The key fetcher is not included.
func (c *ConfigSpec) KeySourceOptions(log logr.Logger) ([]keysource.Option, error) {
	opts := []keysource.Option{
		keysource.WithLogger(log),
		keysource.WithProtectionScheme(drm.ParseProtectionScheme(c.ProtectionScheme)),
		keysource.WithCommonSystemPSSH(c.CommonSystemPSSH),
	}

	if len(c.Tracks) > 0 {
		tracks := make([]drm.TrackType, 0, len(c.Tracks))
		for _, t := range c.Tracks {
			tracks = append(tracks, drm.TrackType(t))
		}
		opts = append(opts, keysource.WithTracks(tracks...))
	}

	if c.GroupID != "" {
		groupID, err := hex.DecodeString(c.GroupID)
		if err != nil {
			return nil, fmt.Errorf("invalid groupID: %w", err)
		}
		opts = append(opts, keysource.WithGroupID(groupID))
	}

	rs, err := c.NewSigner()
	if err != nil {
		return nil, fmt.Errorf("failed to load signer: %w", err)
	}
	if rs != nil {
		opts = append(opts, keysource.WithSigner(rs))
	}

	if r := c.Retry; r != nil {
		opts = append(opts, keysource.WithRetry(r.MaxAttempts, r.InitialInterval.Duration))
	}

	if k := c.KeyRotation; k != nil {
		opts = append(opts,
			keysource.WithKeyRotation(k.CryptoPeriodCount),
			keysource.WithKeyPoolCapacity(k.KeyPoolCapacity),
			keysource.WithGetKeyTimeout(k.GetKeyTimeout.Duration),
		)
	}
	return opts, nil
}

// NewWidevine returns the Widevine key source described by the
// configuration. Extra options are applied last.
func (c *ConfigSpec) NewWidevine(log logr.Logger, extra ...keysource.Option) (*keysource.Widevine, error) {
	opts, err := c.KeySourceOptions(log)
	if err != nil {
		return nil, err
	}
	opts = append(opts, keysource.WithKeyFetcher(c.NewKeyFetcher(log)))
	opts = append(opts, extra...)
	return keysource.NewWidevine(c.ServerURL, opts...)
}

// NewRaw returns the raw key source described by the configuration.
func (c *ConfigSpec) NewRaw(log logr.Logger) (*keysource.Raw, error) {
	r := c.RawKeys
	if r == nil {
		return nil, fmt.Errorf("%w: rawKeys is not configured", drm.ErrInvalidArgument)
	}

	keys := make(map[string]keysource.RawKey, len(r.Keys))
	for _, k := range r.Keys {
		keyID, err := hex.DecodeString(k.KeyID)
		if err != nil {
			return nil, fmt.Errorf("invalid keyID of track '%s': %w", k.Label, err)
		}
		key, err := hex.DecodeString(k.Key)
		if err != nil {
			return nil, fmt.Errorf("invalid key of track '%s': %w", k.Label, err)
		}
		keys[k.Label] = keysource.RawKey{KeyID: keyID, Key: key}
	}

	opts := []keysource.RawOption{keysource.WithRawLogger(log)}
	if r.IV != "" {
		iv, err := hex.DecodeString(r.IV)
		if err != nil {
			return nil, fmt.Errorf("invalid iv: %w", err)
		}
		opts = append(opts, keysource.WithRawIV(iv))
	}
	if r.PSSH != "" {
		pssh, err := hex.DecodeString(r.PSSH)
		if err != nil {
			return nil, fmt.Errorf("invalid pssh: %w", err)
		}
		opts = append(opts, keysource.WithRawPSSH(pssh))
	}
	return keysource.NewRaw(keys, opts...)
}
