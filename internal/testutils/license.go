// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package testutils

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

const (
	MockContentID = "ContentFoo"
	MockPolicy    = "PolicyFoo"
	MockPSSHData  = "MockPsshData"
	MockSigner    = "widevine_test"
)

// MockTrackTypes are the track labels served by the mock license service.
var MockTrackTypes = []string{"SD", "HD", "UHD1", "UHD2", "AUDIO"}

// MockKeyID returns the 16 byte key id served for a track label.
func MockKeyID(label string) []byte {
	id := []byte("MockKeyId" + label)
	if len(id) < 16 {
		id = append(id, bytes.Repeat([]byte{'~'}, 16-len(id))...)
	}
	return id[:16]
}

// MockKey returns the key served for a track label.
func MockKey(label string) []byte {
	return []byte("MockKey" + label)
}

// MockRotationKey returns the key served for a track label in a crypto period.
func MockRotationKey(label string, index uint32) []byte {
	return []byte(fmt.Sprintf("MockKey%s@%d", label, index))
}

// Track is a track record of a license response.
type Track map[string]any

// ModernTracks returns one track with key id, key and Widevine PSSH data
// per label.
func ModernTracks(labels ...string) []Track {
	tracks := make([]Track, 0, len(labels))
	for _, label := range labels {
		tracks = append(tracks, Track{
			"type":   label,
			"key_id": MockKeyID(label),
			"key":    MockKey(label),
			"pssh": []map[string]any{{
				"drm_type": "WIDEVINE",
				"data":     []byte(MockPSSHData),
			}},
		})
	}
	return tracks
}

// ClassicTracks returns one key only track per label.
func ClassicTracks(labels ...string) []Track {
	tracks := make([]Track, 0, len(labels))
	for _, label := range labels {
		tracks = append(tracks, Track{
			"type": label,
			"key":  MockKey(label),
		})
	}
	return tracks
}

// RotationTracks returns the tracks of count crypto periods starting at first.
func RotationTracks(first, count uint32, labels ...string) []Track {
	tracks := make([]Track, 0, int(count)*len(labels))
	for index := first; index < first+count; index++ {
		for _, label := range labels {
			tracks = append(tracks, Track{
				"type":                label,
				"key_id":              MockKeyID(label),
				"key":                 MockRotationKey(label, index),
				"pssh":                []map[string]any{{"drm_type": "WIDEVINE", "data": []byte{}}},
				"crypto_period_index": index,
			})
		}
	}
	return tracks
}

// LicenseResponse returns the transport envelope of a response with the
// given status and tracks.
func LicenseResponse(status string, tracks []Track) []byte {
	inner := map[string]any{"status": status}
	if tracks != nil {
		inner["tracks"] = tracks
	}
	return Envelope(mustJSON(inner))
}

// Envelope wraps an inner response document.
func Envelope(inner []byte) []byte {
	return mustJSON(map[string]string{"response": base64.StdEncoding.EncodeToString(inner)})
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
