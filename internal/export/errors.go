// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package export

import "errors"

// ErrPayloadEmpty is returned when there is nothing to encrypt or decrypt.
var ErrPayloadEmpty = errors.New("payload cannot be empty")

// ErrKeySetEmpty is returned when a key set contains no keys.
var ErrKeySetEmpty = errors.New("key set is empty")

// ErrKeyNotFound is returned when no suitable key is found in a key set.
var ErrKeyNotFound = errors.New("encryption key not found")

// ErrKeyInvalid is returned when a key fails validation.
var ErrKeyInvalid = errors.New("encryption key is invalid")

// ErrKIDMissing is returned when a key has no key ID.
var ErrKIDMissing = errors.New("key ID is missing")

// ErrKIDNotFoundInHeaders is returned when a JWE has no key ID header.
var ErrKIDNotFoundInHeaders = errors.New("no key ID found in JWE headers")

// ErrParseJWE is returned when a JWE cannot be parsed.
var ErrParseJWE = errors.New("failed to parse JWE")

// ErrEncryptPayload is returned when encryption fails.
var ErrEncryptPayload = errors.New("failed to encrypt payload")

// ErrDecryptPayload is returned when decryption fails.
var ErrDecryptPayload = errors.New("failed to decrypt payload")
