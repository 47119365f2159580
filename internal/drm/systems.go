// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package drm

import "bytes"

// SystemIDSize is the size in bytes of a DRM system id.
const SystemIDSize = 16

// KeyIDSize is the size in bytes of a content key id.
const KeyIDSize = 16

// WidevineSystemID is the system id of Widevine.
var WidevineSystemID = []byte{
	0xed, 0xef, 0x8b, 0xa9, 0x79, 0xd6, 0x4a, 0xce,
	0xa3, 0xc8, 0x27, 0xdc, 0xd5, 0x1d, 0x21, 0xed,
}

// CommonSystemID is the system id of the W3C common PSSH box format,
// which lists the key ids of a batch without any DRM specific data.
var CommonSystemID = []byte{
	0x10, 0x77, 0xef, 0xec, 0xc0, 0xb2, 0x4d, 0x02,
	0xac, 0xe3, 0x3c, 0x1e, 0x52, 0xe2, 0xfb, 0x4b,
}

// DRMTypeWidevine is the DRM type name used on the license wire protocol.
const DRMTypeWidevine = "WIDEVINE"

// IsWidevine reports whether the system id belongs to Widevine.
func IsWidevine(systemID []byte) bool {
	return bytes.Equal(systemID, WidevineSystemID)
}

// TrackType is the label of a track in a key batch.
type TrackType string

const (
	TrackSD    TrackType = "SD"
	TrackHD    TrackType = "HD"
	TrackUHD1  TrackType = "UHD1"
	TrackUHD2  TrackType = "UHD2"
	TrackAudio TrackType = "AUDIO"
)

// DefaultTracks returns the track types requested from the license
// service, in wire order.
func DefaultTracks() []TrackType {
	return []TrackType{TrackSD, TrackHD, TrackUHD1, TrackUHD2, TrackAudio}
}

// InitDataType identifies the format of the init data passed to FetchKeys.
type InitDataType int

const (
	// InitDataUnknown is the zero value and is always rejected.
	InitDataUnknown InitDataType = iota
	// InitDataCENC is one or more concatenated 'pssh' boxes.
	InitDataCENC
	// InitDataWebM is a single key id.
	InitDataWebM
	// InitDataWidevineClassic is a 4 byte big-endian asset id.
	InitDataWidevineClassic
)

func (t InitDataType) String() string {
	switch t {
	case InitDataCENC:
		return "cenc"
	case InitDataWebM:
		return "webm"
	case InitDataWidevineClassic:
		return "widevine_classic"
	default:
		return "unknown"
	}
}

// ParseInitDataType returns the init data type for its string form.
func ParseInitDataType(s string) (InitDataType, bool) {
	for _, t := range []InitDataType{InitDataCENC, InitDataWebM, InitDataWidevineClassic} {
		if t.String() == s {
			return t, true
		}
	}
	return InitDataUnknown, false
}
