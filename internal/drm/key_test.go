// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package drm

import (
	"testing"

	. "github.com/onsi/gomega"
)

func TestNewKeyIDSet(t *testing.T) {
	g := NewWithT(t)

	set := NewKeyIDSet([]byte("b"), []byte("a"), []byte("b"))
	g.Expect(set).To(Equal([][]byte{[]byte("a"), []byte("b")}))

	info := KeySystemInfo{KeyIDs: set}
	g.Expect(info.HasKeyID([]byte("a"))).To(BeTrue())
	g.Expect(info.HasKeyID([]byte("c"))).To(BeFalse())
}

func TestKeySystemInfo_Equal(t *testing.T) {
	g := NewWithT(t)

	a := KeySystemInfo{SystemID: CommonSystemID, KeyIDs: [][]byte{[]byte("1"), []byte("2")}, PSSHVersion: 1}
	b := KeySystemInfo{SystemID: CommonSystemID, KeyIDs: [][]byte{[]byte("2"), []byte("1")}, PSSHVersion: 1}
	g.Expect(a.Equal(b)).To(BeTrue())

	b.PSSHVersion = 0
	g.Expect(a.Equal(b)).To(BeFalse())
}

func TestEncryptionKeyMap(t *testing.T) {
	keys := EncryptionKeyMap{
		"SD": {
			Key:           []byte("sd-key"),
			KeyID:         []byte("sd-id"),
			KeySystemInfo: []KeySystemInfo{WidevineSystemInfo([]byte("sd-pssh"))},
		},
		"HD": {Key: []byte("hd-key"), KeyID: []byte("hd-id")},
	}

	t.Run("get returns a copy", func(t *testing.T) {
		g := NewWithT(t)

		key, ok := keys.Get("SD")
		g.Expect(ok).To(BeTrue())
		key.Key[0] = 'X'
		key.KeySystemInfo[0].PSSHData[0] = 'X'

		g.Expect(keys["SD"].Key).To(Equal([]byte("sd-key")))
		g.Expect(keys["SD"].KeySystemInfo[0].PSSHData).To(Equal([]byte("sd-pssh")))
	})

	t.Run("find by key id", func(t *testing.T) {
		g := NewWithT(t)

		key, ok := keys.FindByKeyID([]byte("hd-id"))
		g.Expect(ok).To(BeTrue())
		g.Expect(key.Key).To(Equal([]byte("hd-key")))

		_, ok = keys.FindByKeyID([]byte("none"))
		g.Expect(ok).To(BeFalse())
	})

	t.Run("labels and key ids", func(t *testing.T) {
		g := NewWithT(t)

		g.Expect(keys.Labels()).To(Equal([]string{"HD", "SD"}))
		g.Expect(keys.KeyIDs()).To(Equal([][]byte{[]byte("hd-id"), []byte("sd-id")}))
	})

	t.Run("clone is deep", func(t *testing.T) {
		g := NewWithT(t)

		c := keys.Clone()
		g.Expect(c["SD"].Equal(keys["SD"])).To(BeTrue())
		c["HD"].Key[0] = 'X'
		g.Expect(keys["HD"].Key).To(Equal([]byte("hd-key")))
	})
}

func TestProtectionScheme(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		scheme ProtectionScheme
		wire   ProtectionScheme
		valid  bool
	}{
		{name: "cenc", in: "cenc", scheme: SchemeCENC, wire: SchemeCENC, valid: true},
		{name: "cbcs", in: "CBCS", scheme: SchemeCBCS, wire: SchemeCBCS, valid: true},
		{name: "cbc1", in: "cbc1", scheme: SchemeCBC1, wire: SchemeCBC1, valid: true},
		{name: "cens", in: "cens", scheme: SchemeCENS, wire: SchemeCENS, valid: true},
		{name: "sample aes", in: "cbca", scheme: SchemeAppleSampleAES, wire: SchemeCBCS, valid: true},
		{name: "unknown", in: "abcd", scheme: ProtectionScheme(0x61626364), wire: ProtectionScheme(0x61626364), valid: false},
		{name: "empty", in: "", scheme: SchemeUnspecified, wire: SchemeUnspecified, valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)

			s := ParseProtectionScheme(tt.in)
			g.Expect(s).To(Equal(tt.scheme))
			g.Expect(s.Normalize()).To(Equal(tt.wire))
			g.Expect(s.Valid()).To(Equal(tt.valid))
		})
	}
}

func TestErrorClassification(t *testing.T) {
	g := NewWithT(t)

	g.Expect(IsRetryable(ErrTimeout)).To(BeTrue())
	g.Expect(IsRetryable(TransientStatusError("INTERNAL_ERROR"))).To(BeTrue())
	g.Expect(IsRetryable(ServerStatusError("ACCESS_DENIED"))).To(BeFalse())
	g.Expect(IsRetryable(ErrTransport)).To(BeFalse())

	g.Expect(IsServerError(TransientStatusError("INTERNAL_ERROR"))).To(BeTrue())
	g.Expect(IsServerError(ErrMalformedResponse)).To(BeTrue())
	g.Expect(IsInvalidArgument(ErrCryptoPeriodCollected)).To(BeTrue())
	g.Expect(SigningError(ErrNotFound)).To(MatchError(ErrInternal))
}
