// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package export

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"
)

const useEnc = "enc"

// NewEncryptionKeySetPair generates a P-256 key pair for
// ECDH-ES+A128KW and returns the public and the private key sets.
// The key ID is a UUID v6.
func NewEncryptionKeySetPair() (publicKeySet *jose.JSONWebKeySet, privateKeySet *jose.JSONWebKeySet, err error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	kid, err := uuid.NewV6()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate key ID: %w", err)
	}

	encKey := func(key any) jose.JSONWebKey {
		return jose.JSONWebKey{
			Key:       key,
			KeyID:     kid.String(),
			Algorithm: string(jose.ECDH_ES_A128KW),
			Use:       useEnc,
		}
	}
	publicKeySet = &jose.JSONWebKeySet{Keys: []jose.JSONWebKey{encKey(&privateKey.PublicKey)}}
	privateKeySet = &jose.JSONWebKeySet{Keys: []jose.JSONWebKey{encKey(privateKey)}}
	return publicKeySet, privateKeySet, nil
}

// WriteKeySet writes the key set as indented JSON. Sets holding private
// keys are written with 0600 permissions and never overwrite a file.
func WriteKeySet(filePath string, keySet *jose.JSONWebKeySet) error {
	if keySet == nil || len(keySet.Keys) == 0 {
		return ErrKeySetEmpty
	}

	data, err := json.MarshalIndent(keySet, "", "  ")
	if err != nil {
		return err
	}

	perm := os.FileMode(0644)
	if !keySet.Keys[0].IsPublic() {
		perm = os.FileMode(0600)
		if _, err := os.Stat(filePath); !os.IsNotExist(err) {
			return fmt.Errorf("file %s already exists, refusing to overwrite", filePath)
		}
	}
	return os.WriteFile(filePath, data, perm)
}

// ReadKeySet reads a JSON Web Key Set file.
func ReadKeySet(filePath string) (*jose.JSONWebKeySet, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read key set from file %s: %w", filePath, err)
	}
	var keySet jose.JSONWebKeySet
	if err := json.Unmarshal(data, &keySet); err != nil {
		return nil, fmt.Errorf("failed to unmarshal key set: %w", err)
	}
	if len(keySet.Keys) == 0 {
		return nil, ErrKeySetEmpty
	}
	return &keySet, nil
}

func isEncKey(key jose.JSONWebKey) bool {
	return key.Use == useEnc && key.Algorithm == string(jose.ECDH_ES_A128KW)
}

// Encrypt encrypts payload with ECDH-ES+A128KW and A128GCM for a public
// key of the set and returns the JWE compact serialization.
// If kid is empty, the first public encryption key is used.
func Encrypt(payload []byte, keySet *jose.JSONWebKeySet, kid string) (string, error) {
	if len(payload) == 0 {
		return "", ErrPayloadEmpty
	}
	if keySet == nil || len(keySet.Keys) == 0 {
		return "", ErrKeySetEmpty
	}

	var publicKey *jose.JSONWebKey
	for i := range keySet.Keys {
		key := keySet.Keys[i]
		if !isEncKey(key) || !key.IsPublic() {
			continue
		}
		if kid == "" || key.KeyID == kid {
			publicKey = &key
			break
		}
	}
	if publicKey == nil {
		return "", ErrKeyNotFound
	}
	if publicKey.KeyID == "" {
		return "", fmt.Errorf("public key is invalid: %w", ErrKIDMissing)
	}
	if !publicKey.Valid() {
		return "", ErrKeyInvalid
	}

	encrypter, err := jose.NewEncrypter(
		jose.A128GCM,
		jose.Recipient{
			Algorithm: jose.ECDH_ES_A128KW,
			Key:       publicKey.Key,
			KeyID:     publicKey.KeyID,
		},
		(&jose.EncrypterOptions{}).WithContentType("application/json"),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEncryptPayload, err)
	}

	jwe, err := encrypter.Encrypt(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEncryptPayload, err)
	}
	return jwe.CompactSerialize()
}

// Decrypt decrypts a JWE with the private key of the set matching the
// key ID found in the JWE headers.
func Decrypt(jweData []byte, keySet *jose.JSONWebKeySet) ([]byte, error) {
	if len(jweData) == 0 {
		return nil, ErrPayloadEmpty
	}
	if keySet == nil || len(keySet.Keys) == 0 {
		return nil, ErrKeySetEmpty
	}

	jwe, err := jose.ParseEncrypted(string(jweData),
		[]jose.KeyAlgorithm{jose.ECDH_ES_A128KW},
		[]jose.ContentEncryption{jose.A128GCM})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseJWE, err)
	}

	kid := jwe.Header.KeyID
	if kid == "" {
		return nil, ErrKIDNotFoundInHeaders
	}

	var privateKey *jose.JSONWebKey
	for i := range keySet.Keys {
		key := keySet.Keys[i]
		if key.KeyID == kid && isEncKey(key) && !key.IsPublic() {
			privateKey = &key
			break
		}
	}
	if privateKey == nil {
		return nil, ErrKeyNotFound
	}
	if !privateKey.Valid() {
		return nil, ErrKeyInvalid
	}

	payload, err := jwe.Decrypt(privateKey.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryptPayload, err)
	}
	return payload, nil
}
