// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package signer

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

// AESSigner signs requests by encrypting the SHA-1 digest of the message
// with AES-CBC and PKCS#5 padding.
type AESSigner struct {
	name  string
	block cipher.Block
	iv    []byte
}

// NewAESSigner returns an AES signer for a 16, 24 or 32 byte key
// and a 16 byte IV.
func NewAESSigner(name string, key, iv []byte) (*AESSigner, error) {
	if name == "" {
		return nil, ErrNameRequired
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, InvalidKeyError(err)
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidIV, aes.BlockSize, len(iv))
	}
	return &AESSigner{
		name:  name,
		block: block,
		iv:    bytes.Clone(iv),
	}, nil
}

// NewAESSignerFromHex returns an AES signer for a hex encoded key and IV.
func NewAESSignerFromHex(name, keyHex, ivHex string) (*AESSigner, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, InvalidKeyError(err)
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidIV, err)
	}
	return NewAESSigner(name, key, iv)
}

// Name returns the signer name.
func (s *AESSigner) Name() string {
	return s.name
}

// Sign returns AES-CBC(PKCS5(SHA1(message))).
func (s *AESSigner) Sign(message []byte) ([]byte, error) {
	digest := sha1.Sum(message)
	padded := pkcs5Padding(digest[:], aes.BlockSize)

	signature := make([]byte, len(padded))
	cipher.NewCBCEncrypter(s.block, s.iv).CryptBlocks(signature, padded)
	return signature, nil
}

func pkcs5Padding(src []byte, blockSize int) []byte {
	padding := blockSize - len(src)%blockSize
	return append(bytes.Clone(src), bytes.Repeat([]byte{byte(padding)}, padding)...)
}
