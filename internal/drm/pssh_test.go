// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package drm

import (
	"bytes"
	"encoding/binary"
	"testing"

	. "github.com/onsi/gomega"
)

func widevineBox(data []byte) []byte {
	var b bytes.Buffer
	_ = binary.Write(&b, binary.BigEndian, uint32(32+len(data)))
	b.WriteString("pssh")
	b.Write([]byte{0, 0, 0, 0})
	b.Write(WidevineSystemID)
	_ = binary.Write(&b, binary.BigEndian, uint32(len(data)))
	b.Write(data)
	return b.Bytes()
}

func TestParsePSSHBoxes(t *testing.T) {
	contentData := []byte("\x22\x0aContentFoo")

	t.Run("parses a widevine box", func(t *testing.T) {
		g := NewWithT(t)

		box := widevineBox(contentData)
		g.Expect(box).To(HaveLen(44))

		infos, err := ParsePSSHBoxes(box)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(infos).To(HaveLen(1))
		g.Expect(IsWidevine(infos[0].SystemID)).To(BeTrue())
		g.Expect(infos[0].PSSHData).To(Equal(contentData))
		g.Expect(infos[0].PSSHVersion).To(BeEquivalentTo(0))
	})

	t.Run("parses concatenated boxes", func(t *testing.T) {
		g := NewWithT(t)

		common, err := CommonSystemInfo([][]byte{bytes.Repeat([]byte{1}, 16)}).PSSHBox()
		g.Expect(err).ToNot(HaveOccurred())

		data := append(widevineBox(contentData), common...)
		infos, err := ParsePSSHBoxes(data)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(infos).To(HaveLen(2))
		g.Expect(infos[1].SystemID).To(Equal(CommonSystemID))
		g.Expect(infos[1].KeyIDs).To(ConsistOf(bytes.Repeat([]byte{1}, 16)))
	})

	t.Run("rejects empty init data", func(t *testing.T) {
		g := NewWithT(t)

		_, err := ParsePSSHBoxes(nil)
		g.Expect(err).To(MatchError(ErrParsePSSH))
		g.Expect(IsInvalidArgument(err)).To(BeTrue())
	})

	t.Run("rejects truncated boxes", func(t *testing.T) {
		g := NewWithT(t)

		box := widevineBox(contentData)
		_, err := ParsePSSHBoxes(box[:20])
		g.Expect(err).To(MatchError(ErrParsePSSH))
	})

	t.Run("rejects boxes of another type", func(t *testing.T) {
		g := NewWithT(t)

		box := widevineBox(contentData)
		copy(box[4:8], "free")
		_, err := ParsePSSHBoxes(box)
		g.Expect(err).To(MatchError(ErrParsePSSH))
	})
}

func TestKeySystemInfo_PSSHBox(t *testing.T) {
	t.Run("version 0 round trip", func(t *testing.T) {
		g := NewWithT(t)

		data := []byte("\x22\x0aContentFoo")
		box, err := WidevineSystemInfo(data).PSSHBox()
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(box).To(Equal(widevineBox(data)))
	})

	t.Run("version 1 carries key ids", func(t *testing.T) {
		g := NewWithT(t)

		ids := [][]byte{bytes.Repeat([]byte{2}, 16), bytes.Repeat([]byte{1}, 16)}
		box, err := CommonSystemInfo(ids).PSSHBox()
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(box).To(HaveLen(36 + 16*len(ids)))
		g.Expect(box[8]).To(BeEquivalentTo(1))

		infos, err := ParsePSSHBoxes(box)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(infos).To(HaveLen(1))
		g.Expect(infos[0].Equal(CommonSystemInfo(ids))).To(BeTrue())
	})

	t.Run("rejects invalid system id", func(t *testing.T) {
		g := NewWithT(t)

		_, err := KeySystemInfo{SystemID: []byte{1, 2}}.PSSHBox()
		g.Expect(err).To(MatchError(ErrInvalidArgument))
	})

	t.Run("rejects invalid key id in version 1", func(t *testing.T) {
		g := NewWithT(t)

		info := CommonSystemInfo([][]byte{{1, 2, 3}})
		_, err := info.PSSHBox()
		g.Expect(err).To(MatchError(ErrInvalidArgument))
	})
}

func TestWidevinePsshData(t *testing.T) {
	t.Run("encodes key ids as field 2", func(t *testing.T) {
		g := NewWithT(t)

		data := WidevinePsshData{KeyIDs: [][]byte{{0, 1, 2, 3, 4, 5}}}.Marshal()
		g.Expect(data).To(Equal([]byte{0x12, 0x06, 0, 1, 2, 3, 4, 5}))
	})

	t.Run("encodes content id as field 4", func(t *testing.T) {
		g := NewWithT(t)

		data := WidevinePsshData{ContentID: []byte("ContentFoo")}.Marshal()
		g.Expect(data).To(Equal([]byte("\x22\x0aContentFoo")))
	})

	t.Run("round trip skips unknown fields", func(t *testing.T) {
		g := NewWithT(t)

		in := WidevinePsshData{
			KeyIDs:    [][]byte{bytes.Repeat([]byte{7}, 16)},
			Provider:  "widevine_test",
			ContentID: []byte("content"),
			Policy:    "default",
		}
		// algorithm = AESCTR (field 1, varint)
		data := append([]byte{0x08, 0x01}, in.Marshal()...)

		out, err := ParseWidevinePsshData(data)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(out).To(Equal(in))
	})

	t.Run("rejects truncated data", func(t *testing.T) {
		g := NewWithT(t)

		_, err := ParseWidevinePsshData([]byte{0x12, 0x06, 0})
		g.Expect(err).To(MatchError(ErrInvalidArgument))
	})
}
