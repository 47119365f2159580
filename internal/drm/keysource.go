// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package drm

import "context"

// KeySource provides encryption keys to the packaging pipeline.
type KeySource interface {
	// FetchKeys retrieves the keys identified by the init data. It blocks
	// until the keys are available or the fetch fails.
	FetchKeys(ctx context.Context, initDataType InitDataType, initData []byte) error

	// GetKey returns the key stored for the track label.
	GetKey(label string) (EncryptionKey, error)

	// GetKeyByID returns the key with the given key id.
	GetKeyByID(keyID []byte) (EncryptionKey, error)

	// GetCryptoPeriodKey returns the key of the track label for the crypto
	// period index, waiting for it to be produced if needed.
	GetCryptoPeriodKey(ctx context.Context, cryptoPeriodIndex uint32, label string) (EncryptionKey, error)
}
