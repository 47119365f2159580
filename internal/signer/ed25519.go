// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package signer

import (
	"crypto/ed25519"
	"fmt"
)

// Ed25519Signer signs requests with the private key of a KeySet.
type Ed25519Signer struct {
	name  string
	keyID string
	key   ed25519.PrivateKey
}

// NewEd25519Signer returns a signer for a private key set.
func NewEd25519Signer(keySet *KeySet) (*Ed25519Signer, error) {
	key, kid, err := keySet.PrivateKey()
	if err != nil {
		return nil, err
	}
	return &Ed25519Signer{
		name:  keySet.Signer,
		keyID: kid,
		key:   key,
	}, nil
}

// NewEd25519SignerFromFile returns a signer for a private key set file.
func NewEd25519SignerFromFile(path string) (*Ed25519Signer, error) {
	keySet, err := KeySetFromFile(path)
	if err != nil {
		return nil, err
	}
	return NewEd25519Signer(keySet)
}

// Name returns the signer name of the key set.
func (s *Ed25519Signer) Name() string {
	return s.name
}

// KeyID returns the ID of the signing key.
func (s *Ed25519Signer) KeyID() string {
	return s.keyID
}

// Sign returns the Ed25519 signature of message.
func (s *Ed25519Signer) Sign(message []byte) ([]byte, error) {
	return ed25519.Sign(s.key, message), nil
}

// VerifyEd25519 checks a signature against the key with keyID in a
// public key set.
func VerifyEd25519(keySet *KeySet, keyID string, message, signature []byte) error {
	publicKey, err := keySet.PublicKey(keyID)
	if err != nil {
		return err
	}
	if !ed25519.Verify(publicKey, message, signature) {
		return fmt.Errorf("%w: key %s", ErrVerifySig, keyID)
	}
	return nil
}
