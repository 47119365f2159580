// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package signer

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"
)

// KeySet is a JWK Set holding the Ed25519 keys of a request signer.
// A private set holds exactly one key and names the signer, a public
// set holds any number of keys and is shared with the license service.
type KeySet struct {
	// Signer is the name registered with the license service.
	// It is set only on private key sets.
	Signer string `json:"signer,omitempty"`

	// Keys is the list of JSON Web Keys in the set.
	Keys []jose.JSONWebKey `json:"keys"`
}

// NewKeySetPair generates an Ed25519 key pair and returns the public
// set and the private set for the given signer name.
// The key ID is a UUID v6.
func NewKeySetPair(signerName string) (publicKeySet *KeySet, privateKeySet *KeySet, err error) {
	if signerName == "" {
		return nil, nil, ErrNameRequired
	}

	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	kid, err := uuid.NewV6()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate key ID: %w", err)
	}

	publicKeySet = &KeySet{Keys: []jose.JSONWebKey{sigKey(publicKey, kid.String())}}
	privateKeySet = &KeySet{
		Signer: signerName,
		Keys:   []jose.JSONWebKey{sigKey(privateKey, kid.String())},
	}
	return publicKeySet, privateKeySet, nil
}

func sigKey(key any, kid string) jose.JSONWebKey {
	return jose.JSONWebKey{
		Key:       key,
		KeyID:     kid,
		Algorithm: string(jose.EdDSA),
		Use:       "sig",
	}
}

// ToJSON converts the key set to indented JSON.
func (k *KeySet) ToJSON() ([]byte, error) {
	return json.MarshalIndent(*k, "", "  ")
}

// WriteFile writes the key set to filePath. Private sets are written
// with 0600 permissions and never overwrite an existing file.
func (k *KeySet) WriteFile(filePath string) error {
	if len(k.Keys) == 0 {
		return ErrKeySetEmpty
	}

	data, err := k.ToJSON()
	if err != nil {
		return err
	}

	perm := os.FileMode(0644)
	if k.Signer != "" {
		perm = os.FileMode(0600)
		if _, err := os.Stat(filePath); !os.IsNotExist(err) {
			return fmt.Errorf("file %s already exists, refusing to overwrite", filePath)
		}
	}

	return os.WriteFile(filePath, data, perm)
}

// KeySetFromJSON decodes a key set and checks its shape.
func KeySetFromJSON(data []byte) (*KeySet, error) {
	var keySet KeySet
	if err := json.Unmarshal(data, &keySet); err != nil {
		return nil, fmt.Errorf("failed to unmarshal key set: %w", err)
	}
	if len(keySet.Keys) == 0 {
		return nil, ErrKeySetEmpty
	}
	if keySet.Signer != "" && len(keySet.Keys) > 1 {
		return nil, fmt.Errorf("key set of signer %s cannot contain multiple keys", keySet.Signer)
	}
	return &keySet, nil
}

// KeySetFromFile reads a key set from a JSON file.
func KeySetFromFile(filePath string) (*KeySet, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read key set from file %s: %w", filePath, err)
	}
	return KeySetFromJSON(data)
}

// PublicKey returns the Ed25519 public key with the given key ID.
func (k *KeySet) PublicKey(keyID string) (ed25519.PublicKey, error) {
	for _, key := range k.Keys {
		if key.KeyID != keyID {
			continue
		}
		if err := checkSigKey(key); err != nil {
			return nil, err
		}
		publicKey, ok := key.Key.(ed25519.PublicKey)
		if !ok {
			return nil, InvalidKeyError(fmt.Errorf("key with ID %s is not an Ed25519 public key", keyID))
		}
		return publicKey, nil
	}
	return nil, InvalidKeyError(fmt.Errorf("no public key found with ID %s", keyID))
}

// PrivateKey returns the Ed25519 private key and its key ID.
func (k *KeySet) PrivateKey() (ed25519.PrivateKey, string, error) {
	if k.Signer == "" {
		return nil, "", InvalidKeyError(fmt.Errorf("key set has no signer"))
	}
	if len(k.Keys) == 0 {
		return nil, "", ErrKeySetEmpty
	}

	key := k.Keys[0]
	if key.KeyID == "" {
		return nil, "", InvalidKeyError(fmt.Errorf("key ID is missing"))
	}
	if err := checkSigKey(key); err != nil {
		return nil, "", err
	}
	privateKey, ok := key.Key.(ed25519.PrivateKey)
	if !ok {
		return nil, "", InvalidKeyError(fmt.Errorf("key is not an Ed25519 private key"))
	}
	return privateKey, key.KeyID, nil
}

func checkSigKey(key jose.JSONWebKey) error {
	if key.Algorithm != string(jose.EdDSA) {
		return InvalidKeyError(fmt.Errorf("key with ID %s has unsupported algorithm %s, expected %s",
			key.KeyID, key.Algorithm, jose.EdDSA))
	}
	if key.Use != "sig" {
		return InvalidKeyError(fmt.Errorf("key with ID %s has unsupported use %s, expected 'sig'",
			key.KeyID, key.Use))
	}
	return nil
}
