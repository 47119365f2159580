// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package drm

import (
	"bytes"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// WidevinePsshData field numbers.
const (
	wvFieldKeyID     protowire.Number = 2
	wvFieldProvider  protowire.Number = 3
	wvFieldContentID protowire.Number = 4
	wvFieldPolicy    protowire.Number = 6
)

// WidevinePsshData is the subset of the Widevine PSSH data message used
// to identify content in a license request.
type WidevinePsshData struct {
	KeyIDs    [][]byte
	Provider  string
	ContentID []byte
	Policy    string
}

// Marshal encodes the message in protobuf wire format with fields
// in ascending number order.
func (d WidevinePsshData) Marshal() []byte {
	var b []byte
	for _, id := range d.KeyIDs {
		b = protowire.AppendTag(b, wvFieldKeyID, protowire.BytesType)
		b = protowire.AppendBytes(b, id)
	}
	if d.Provider != "" {
		b = protowire.AppendTag(b, wvFieldProvider, protowire.BytesType)
		b = protowire.AppendString(b, d.Provider)
	}
	if len(d.ContentID) > 0 {
		b = protowire.AppendTag(b, wvFieldContentID, protowire.BytesType)
		b = protowire.AppendBytes(b, d.ContentID)
	}
	if d.Policy != "" {
		b = protowire.AppendTag(b, wvFieldPolicy, protowire.BytesType)
		b = protowire.AppendString(b, d.Policy)
	}
	return b
}

// ParseWidevinePsshData decodes the known fields of a Widevine PSSH data
// message, unknown fields are skipped.
func ParseWidevinePsshData(b []byte) (WidevinePsshData, error) {
	var d WidevinePsshData
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return d, fmt.Errorf("%w: invalid widevine pssh data: %w", ErrInvalidArgument, protowire.ParseError(n))
		}
		b = b[n:]

		if typ == protowire.BytesType {
			switch num {
			case wvFieldKeyID, wvFieldProvider, wvFieldContentID, wvFieldPolicy:
				v, m := protowire.ConsumeBytes(b)
				if m < 0 {
					return d, fmt.Errorf("%w: invalid widevine pssh data: %w", ErrInvalidArgument, protowire.ParseError(m))
				}
				switch num {
				case wvFieldKeyID:
					d.KeyIDs = append(d.KeyIDs, bytes.Clone(v))
				case wvFieldProvider:
					d.Provider = string(v)
				case wvFieldContentID:
					d.ContentID = bytes.Clone(v)
				case wvFieldPolicy:
					d.Policy = string(v)
				}
				b = b[m:]
				continue
			}
		}

		m := protowire.ConsumeFieldValue(num, typ, b)
		if m < 0 {
			return d, fmt.Errorf("%w: invalid widevine pssh data: %w", ErrInvalidArgument, protowire.ParseError(m))
		}
		b = b[m:]
	}
	return d, nil
}
