// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package signer

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// RSASigner signs requests with RSASSA-PSS over SHA-1 and a salt of the
// digest length.
type RSASigner struct {
	name string
	key  *rsa.PrivateKey
}

// NewRSASigner returns an RSA signer for the given private key.
func NewRSASigner(name string, key *rsa.PrivateKey) (*RSASigner, error) {
	if name == "" {
		return nil, ErrNameRequired
	}
	if key == nil {
		return nil, InvalidKeyError(errors.New("private key is nil"))
	}
	if err := key.Validate(); err != nil {
		return nil, InvalidKeyError(err)
	}
	return &RSASigner{name: name, key: key}, nil
}

// NewRSASignerFromFile returns an RSA signer for a PEM or DER encoded
// PKCS#1 or PKCS#8 private key file.
func NewRSASignerFromFile(name, path string) (*RSASigner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key from %s: %w", path, err)
	}
	key, err := ParseRSAPrivateKey(data)
	if err != nil {
		return nil, err
	}
	return NewRSASigner(name, key)
}

// ParseRSAPrivateKey decodes a PEM or DER encoded PKCS#1 or PKCS#8 RSA key.
func ParseRSAPrivateKey(data []byte) (*rsa.PrivateKey, error) {
	if block, _ := pem.Decode(data); block != nil {
		data = block.Bytes
	}

	if key, err := x509.ParsePKCS1PrivateKey(data); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(data)
	if err != nil {
		return nil, InvalidKeyError(err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, InvalidKeyError(fmt.Errorf("expected an RSA key, got %T", parsed))
	}
	return key, nil
}

// Name returns the signer name.
func (s *RSASigner) Name() string {
	return s.name
}

// Sign returns the RSA-PSS signature of the SHA-1 digest of message.
func (s *RSASigner) Sign(message []byte) ([]byte, error) {
	digest := sha1.Sum(message)
	return rsa.SignPSS(rand.Reader, s.key, crypto.SHA1, digest[:],
		&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
}

// VerifyRSA checks an RSA-PSS signature produced by RSASigner.
func VerifyRSA(pub *rsa.PublicKey, message, signature []byte) error {
	digest := sha1.Sum(message)
	err := rsa.VerifyPSS(pub, crypto.SHA1, digest[:], signature,
		&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrVerifySig, err)
	}
	return nil
}
