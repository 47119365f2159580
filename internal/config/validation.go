// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"

	"github.com/controlplaneio-fluxcd/drm-keysource/internal/drm"
)

// Validate validates the Config configuration.
func (c Config) Validate() error {
	if c.APIVersion != APIVersion || c.Kind != ConfigKind {
		return fmt.Errorf("expected apiVersion '%s' and kind '%s', got '%s' and '%s'",
			APIVersion, ConfigKind, c.APIVersion, c.Kind)
	}
	return c.Spec.Validate()
}

// Validate validates the ConfigSpec configuration.
func (c ConfigSpec) Validate() error {
	if c.RawKeys != nil {
		if c.ServerURL != "" {
			return errors.New("serverURL and rawKeys are mutually exclusive")
		}
		if err := c.RawKeys.Validate(); err != nil {
			return fmt.Errorf("invalid rawKeys configuration: %w", err)
		}
		return nil
	}

	if c.ServerURL == "" {
		return errors.New("serverURL must be set when rawKeys is not configured")
	}
	if u, err := url.Parse(c.ServerURL); err != nil {
		return fmt.Errorf("invalid serverURL: %w", err)
	} else if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid serverURL '%s': scheme and host are required", c.ServerURL)
	}

	if c.ProtectionScheme != "" && !drm.ParseProtectionScheme(c.ProtectionScheme).Valid() {
		return fmt.Errorf("unsupported protectionScheme '%s'", c.ProtectionScheme)
	}
	for i, t := range c.Tracks {
		if t == "" {
			return fmt.Errorf("tracks[%d] must not be empty", i)
		}
	}
	if _, err := hex.DecodeString(c.GroupID); err != nil {
		return fmt.Errorf("invalid groupID: %w", err)
	}

	if c.Signer != nil {
		if err := c.Signer.Validate(); err != nil {
			return fmt.Errorf("invalid signer configuration: %w", err)
		}
	}
	if c.KeyRotation != nil && c.KeyRotation.KeyPoolCapacity < 0 {
		return errors.New("invalid keyRotation configuration: keyPoolCapacity must not be negative")
	}
	if c.Fetcher != nil && c.Fetcher.Retries < 0 {
		return errors.New("invalid fetcher configuration: retries must not be negative")
	}
	return nil
}

// Validate validates the SignerSpec configuration.
func (s SignerSpec) Validate() error {
	switch s.Type {
	case SignerTypeAES:
		if s.Name == "" {
			return errors.New("name must be set")
		}
		if s.AESKey == "" || s.AESIV == "" {
			return errors.New("aesKey and aesIV must be set for the aes signer")
		}
		if _, err := hex.DecodeString(s.AESKey); err != nil {
			return fmt.Errorf("invalid aesKey: %w", err)
		}
		if _, err := hex.DecodeString(s.AESIV); err != nil {
			return fmt.Errorf("invalid aesIV: %w", err)
		}
	case SignerTypeRSA:
		if s.Name == "" {
			return errors.New("name must be set")
		}
		if s.KeyFile == "" {
			return errors.New("keyFile must be set for the rsa signer")
		}
	case SignerTypeEd25519:
		if s.KeyFile == "" {
			return errors.New("keyFile must be set for the ed25519 signer")
		}
	default:
		return fmt.Errorf("unsupported type '%s', must be one of %s, %s or %s",
			s.Type, SignerTypeAES, SignerTypeRSA, SignerTypeEd25519)
	}
	return nil
}

// Validate validates the RawKeysSpec configuration.
func (r RawKeysSpec) Validate() error {
	if len(r.Keys) == 0 {
		return errors.New("at least one key must be set")
	}
	if _, err := hex.DecodeString(r.IV); err != nil {
		return fmt.Errorf("invalid iv: %w", err)
	}
	if _, err := hex.DecodeString(r.PSSH); err != nil {
		return fmt.Errorf("invalid pssh: %w", err)
	}

	labels := make(map[string]struct{}, len(r.Keys))
	for i, k := range r.Keys {
		if _, dup := labels[k.Label]; dup {
			return fmt.Errorf("keys[%d]: duplicate label '%s'", i, k.Label)
		}
		labels[k.Label] = struct{}{}

		if _, err := hex.DecodeString(k.KeyID); err != nil {
			return fmt.Errorf("keys[%d]: invalid keyID: %w", i, err)
		}
		if _, err := hex.DecodeString(k.Key); err != nil {
			return fmt.Errorf("keys[%d]: invalid key: %w", i, err)
		}
	}
	return nil
}
