// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package config

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	// APIVersion is the version of the key source configuration API.
	APIVersion = "keysource.drm.controlplane.io/v1"

	// ConfigKind is the kind of the key source configuration API.
	ConfigKind = "KeySourceConfig"
)

// Signer types.
const (
	SignerTypeAES     = "aes"
	SignerTypeRSA     = "rsa"
	SignerTypeEd25519 = "ed25519"
)

// Config is the key source configuration file.
type Config struct {
	APIVersion string `json:"apiVersion"`
	Kind       string `json:"kind"`

	// Spec holds the key source configuration.
	Spec ConfigSpec `json:"spec"`
}

// ConfigSpec holds the key source configuration.
type ConfigSpec struct {
	// Version is set when the configuration is loaded and is not part
	// of the API.
	Version string `json:"-"`

	// ServerURL is the license service endpoint. Required unless
	// RawKeys is set.
	ServerURL string `json:"serverURL"`

	// ProtectionScheme is the FourCC of the encryption scheme.
	// Defaults to cenc.
	ProtectionScheme string `json:"protectionScheme"`

	// Tracks are the track types requested.
	// Defaults to SD, HD, UHD1, UHD2 and AUDIO.
	Tracks []string `json:"tracks"`

	// GroupID is the hex encoded group license id.
	GroupID string `json:"groupID"`

	// CommonSystemPSSH adds a common system record to every key.
	CommonSystemPSSH bool `json:"commonSystemPssh"`

	// Signer signs license requests, unsigned when nil.
	Signer *SignerSpec `json:"signer"`

	// KeyRotation enables key rotation when set.
	KeyRotation *KeyRotationSpec `json:"keyRotation"`

	// Retry configures the retries of one license request.
	Retry *RetrySpec `json:"retry"`

	// Fetcher configures the HTTP transport.
	Fetcher *FetcherSpec `json:"fetcher"`

	// RawKeys configures a raw key source instead of a license service.
	RawKeys *RawKeysSpec `json:"rawKeys"`
}

// SignerSpec configures the request signer.
type SignerSpec struct {
	// Type is one of aes, rsa or ed25519.
	Type string `json:"type"`

	// Name is the signer name sent with requests. Ed25519 signers take
	// it from the key set when empty.
	Name string `json:"name"`

	// AESKey and AESIV are the hex encoded AES signing key and IV.
	AESKey string `json:"aesKey"`
	AESIV  string `json:"aesIV"`

	// KeyFile is the path of an RSA private key or Ed25519 private key set.
	KeyFile string `json:"keyFile"`
}

// KeyRotationSpec configures key rotation.
type KeyRotationSpec struct {
	CryptoPeriodCount uint32   `json:"cryptoPeriodCount"`
	KeyPoolCapacity   int      `json:"keyPoolCapacity"`
	GetKeyTimeout     Duration `json:"getKeyTimeout"`
}

// RetrySpec configures license request retries.
type RetrySpec struct {
	MaxAttempts     uint     `json:"maxAttempts"`
	InitialInterval Duration `json:"initialInterval"`
}

// FetcherSpec configures the HTTP fetcher.
type FetcherSpec struct {
	Timeout            Duration `json:"timeout"`
	Retries            int      `json:"retries"`
	UserAgent          string   `json:"userAgent"`
	InsecureSkipVerify bool     `json:"insecureSkipVerify"`
}

// RawKeysSpec configures fixed keys.
type RawKeysSpec struct {
	// IV is the hex encoded IV attached to every key.
	IV string `json:"iv"`

	// PSSH is the hex encoded concatenation of 'pssh' boxes.
	PSSH string `json:"pssh"`

	Keys []RawKeySpec `json:"keys"`
}

// RawKeySpec is a hex encoded key of a track label.
type RawKeySpec struct {
	Label string `json:"label"`
	KeyID string `json:"keyID"`
	Key   string `json:"key"`
}

// Duration is a time.Duration encoded as a Go duration string.
type Duration struct {
	time.Duration
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string such as '30s': %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}
