// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

// Package export serializes fetched keys into JSON documents, optionally
// encrypted as JWE for a recipient key set.
package export

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/controlplaneio-fluxcd/drm-keysource/internal/drm"
)

// Document lists the keys of one title.
type Document struct {
	// ContentID is the content id the keys were requested for, if any.
	ContentID string `json:"contentID,omitempty"`

	Keys []TrackKey `json:"keys"`
}

// TrackKey is the exported form of a drm.EncryptionKey.
// Binary fields are hex encoded, PSSH boxes base64 encoded.
type TrackKey struct {
	Label             string   `json:"label"`
	CryptoPeriodIndex *uint32  `json:"cryptoPeriodIndex,omitempty"`
	KeyID             string   `json:"keyID,omitempty"`
	Key               string   `json:"key"`
	IV                string   `json:"iv,omitempty"`
	PSSH              []string `json:"pssh,omitempty"`
}

// Add appends the key of a track. The index is set for crypto period keys.
func (d *Document) Add(label string, key drm.EncryptionKey, index *uint32) error {
	tk := TrackKey{
		Label: label,
		KeyID: hex.EncodeToString(key.KeyID),
		Key:   hex.EncodeToString(key.Key),
		IV:    hex.EncodeToString(key.IV),
	}
	if index != nil {
		i := *index
		tk.CryptoPeriodIndex = &i
	}
	for _, info := range key.KeySystemInfo {
		box, err := info.PSSHBox()
		if err != nil {
			return fmt.Errorf("track %s: %w", label, err)
		}
		tk.PSSH = append(tk.PSSH, base64.StdEncoding.EncodeToString(box))
	}
	d.Keys = append(d.Keys, tk)
	return nil
}

// AddBatch appends every key of a batch ordered by label.
func (d *Document) AddBatch(batch drm.EncryptionKeyMap, index *uint32) error {
	for _, label := range batch.Labels() {
		if err := d.Add(label, batch[label], index); err != nil {
			return err
		}
	}
	return nil
}

// Sort orders the keys by crypto period then label.
func (d *Document) Sort() {
	slices.SortStableFunc(d.Keys, func(a, b TrackKey) int {
		var ai, bi uint32
		if a.CryptoPeriodIndex != nil {
			ai = *a.CryptoPeriodIndex
		}
		if b.CryptoPeriodIndex != nil {
			bi = *b.CryptoPeriodIndex
		}
		if ai != bi {
			if ai < bi {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Label, b.Label)
	})
}

// ToJSON returns the document as indented JSON.
func (d *Document) ToJSON() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// DocumentFromJSON decodes a document.
func DocumentFromJSON(data []byte) (*Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal key document: %w", err)
	}
	return &d, nil
}
