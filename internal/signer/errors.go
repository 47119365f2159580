// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package signer

import (
	"errors"
	"fmt"
)

// ErrNameRequired is returned when a signer is created without a name.
var ErrNameRequired = errors.New("signer name is required")

// ErrInvalidKey is returned when the signing key cannot be used.
var ErrInvalidKey = errors.New("invalid signing key")

// ErrInvalidIV is returned when the AES initialization vector has the wrong size.
var ErrInvalidIV = errors.New("invalid AES IV")

// ErrKeySetEmpty is returned when a key set contains no keys.
var ErrKeySetEmpty = errors.New("key set is empty")

// ErrVerifySig is returned when a signature does not match the message.
var ErrVerifySig = errors.New("failed to verify signature")

// InvalidKeyError wraps a key parsing error.
func InvalidKeyError(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidKey, err)
}
