// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package drm

import "strings"

// ProtectionScheme is a common encryption scheme FourCC.
type ProtectionScheme uint32

const (
	SchemeUnspecified ProtectionScheme = 0
	SchemeCENC        ProtectionScheme = 0x63656e63 // 'cenc'
	SchemeCBC1        ProtectionScheme = 0x63626331 // 'cbc1'
	SchemeCENS        ProtectionScheme = 0x63656e73 // 'cens'
	SchemeCBCS        ProtectionScheme = 0x63626373 // 'cbcs'

	// SchemeAppleSampleAES is the HLS Sample-AES scheme. It is sent to the
	// license service as SchemeCBCS.
	SchemeAppleSampleAES ProtectionScheme = 0x63626361 // 'cbca'
)

// ParseProtectionScheme returns the scheme for a FourCC string such as "cbcs".
// Unknown strings are returned as their FourCC value so that they can be
// reported, Valid returns false for them.
func ParseProtectionScheme(s string) ProtectionScheme {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 4 {
		return SchemeUnspecified
	}
	return ProtectionScheme(uint32(s[0])<<24 | uint32(s[1])<<16 | uint32(s[2])<<8 | uint32(s[3]))
}

// Normalize maps caller side scheme variants to the scheme sent on the wire.
func (p ProtectionScheme) Normalize() ProtectionScheme {
	if p == SchemeAppleSampleAES {
		return SchemeCBCS
	}
	return p
}

// Valid reports whether the scheme is one the license service understands
// after normalization.
func (p ProtectionScheme) Valid() bool {
	switch p.Normalize() {
	case SchemeCENC, SchemeCBC1, SchemeCENS, SchemeCBCS:
		return true
	default:
		return false
	}
}

// String returns the FourCC text of the scheme.
func (p ProtectionScheme) String() string {
	if p == SchemeUnspecified {
		return ""
	}
	b := []byte{byte(p >> 24), byte(p >> 16), byte(p >> 8), byte(p)}
	return string(b)
}
