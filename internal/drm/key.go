// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package drm

import (
	"bytes"
	"slices"
)

// EncryptionKey is a content key together with the DRM system records
// needed to license it.
type EncryptionKey struct {
	Key           []byte
	KeyID         []byte
	IV            []byte
	KeySystemInfo []KeySystemInfo
}

// Clone returns a deep copy of the key.
func (k EncryptionKey) Clone() EncryptionKey {
	c := EncryptionKey{
		Key:   bytes.Clone(k.Key),
		KeyID: bytes.Clone(k.KeyID),
		IV:    bytes.Clone(k.IV),
	}
	if k.KeySystemInfo != nil {
		c.KeySystemInfo = make([]KeySystemInfo, len(k.KeySystemInfo))
		for i, info := range k.KeySystemInfo {
			c.KeySystemInfo[i] = info.Clone()
		}
	}
	return c
}

// Equal reports whether both keys carry the same bytes and system records.
func (k EncryptionKey) Equal(o EncryptionKey) bool {
	return bytes.Equal(k.Key, o.Key) &&
		bytes.Equal(k.KeyID, o.KeyID) &&
		bytes.Equal(k.IV, o.IV) &&
		slices.EqualFunc(k.KeySystemInfo, o.KeySystemInfo, KeySystemInfo.Equal)
}

// SystemInfo returns the record of the given DRM system.
func (k EncryptionKey) SystemInfo(systemID []byte) (KeySystemInfo, bool) {
	for _, info := range k.KeySystemInfo {
		if bytes.Equal(info.SystemID, systemID) {
			return info, true
		}
	}
	return KeySystemInfo{}, false
}

// KeySystemInfo holds the initialization data of one DRM system.
type KeySystemInfo struct {
	SystemID []byte
	PSSHData []byte

	// KeyIDs is kept sorted and free of duplicates, see NewKeyIDSet.
	KeyIDs [][]byte

	// PSSHVersion is the 'pssh' box version used when serializing.
	// Version 1 boxes carry KeyIDs in the box header.
	PSSHVersion uint8
}

// Clone returns a deep copy of the record.
func (i KeySystemInfo) Clone() KeySystemInfo {
	c := KeySystemInfo{
		SystemID:    bytes.Clone(i.SystemID),
		PSSHData:    bytes.Clone(i.PSSHData),
		PSSHVersion: i.PSSHVersion,
	}
	if i.KeyIDs != nil {
		c.KeyIDs = make([][]byte, len(i.KeyIDs))
		for n, id := range i.KeyIDs {
			c.KeyIDs[n] = bytes.Clone(id)
		}
	}
	return c
}

// Equal compares two records, key ids are compared as sets.
func (i KeySystemInfo) Equal(o KeySystemInfo) bool {
	return bytes.Equal(i.SystemID, o.SystemID) &&
		bytes.Equal(i.PSSHData, o.PSSHData) &&
		i.PSSHVersion == o.PSSHVersion &&
		slices.EqualFunc(NewKeyIDSet(i.KeyIDs...), NewKeyIDSet(o.KeyIDs...), bytes.Equal)
}

// HasKeyID reports whether id is listed in the record.
func (i KeySystemInfo) HasKeyID(id []byte) bool {
	_, found := slices.BinarySearchFunc(i.KeyIDs, id, bytes.Compare)
	return found
}

// NewKeyIDSet returns copies of the ids sorted and without duplicates.
func NewKeyIDSet(ids ...[]byte) [][]byte {
	set := make([][]byte, 0, len(ids))
	for _, id := range ids {
		set = append(set, bytes.Clone(id))
	}
	slices.SortFunc(set, bytes.Compare)
	return slices.CompactFunc(set, bytes.Equal)
}

// EncryptionKeyMap holds the keys of one batch indexed by track label.
type EncryptionKeyMap map[string]EncryptionKey

// Clone returns a deep copy of the map.
func (m EncryptionKeyMap) Clone() EncryptionKeyMap {
	if m == nil {
		return nil
	}
	c := make(EncryptionKeyMap, len(m))
	for label, key := range m {
		c[label] = key.Clone()
	}
	return c
}

// Get returns a copy of the key stored for the label.
func (m EncryptionKeyMap) Get(label string) (EncryptionKey, bool) {
	key, ok := m[label]
	if !ok {
		return EncryptionKey{}, false
	}
	return key.Clone(), true
}

// FindByKeyID returns a copy of the key with the given key id.
func (m EncryptionKeyMap) FindByKeyID(keyID []byte) (EncryptionKey, bool) {
	for _, key := range m {
		if bytes.Equal(key.KeyID, keyID) {
			return key.Clone(), true
		}
	}
	return EncryptionKey{}, false
}

// Labels returns the track labels of the batch in sorted order.
func (m EncryptionKeyMap) Labels() []string {
	labels := make([]string, 0, len(m))
	for label := range m {
		labels = append(labels, label)
	}
	slices.Sort(labels)
	return labels
}

// KeyIDs returns the set of key ids in the batch.
func (m EncryptionKeyMap) KeyIDs() [][]byte {
	ids := make([][]byte, 0, len(m))
	for _, key := range m {
		if len(key.KeyID) > 0 {
			ids = append(ids, key.KeyID)
		}
	}
	return NewKeyIDSet(ids...)
}
