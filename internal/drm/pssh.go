// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package drm

import (
	"bytes"
	"fmt"

	"github.com/Eyevinn/mp4ff/mp4"
)

// ParsePSSHBoxes decodes a sequence of concatenated 'pssh' boxes.
func ParsePSSHBoxes(data []byte) ([]KeySystemInfo, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty init data", ErrParsePSSH)
	}

	var infos []KeySystemInfo
	r := bytes.NewReader(data)
	for r.Len() > 0 {
		pos := uint64(len(data) - r.Len())
		box, err := mp4.DecodeBox(pos, r)
		if err != nil {
			return nil, fmt.Errorf("%w: decode box at offset %d: %w", ErrParsePSSH, pos, err)
		}

		pssh, ok := box.(*mp4.PsshBox)
		if !ok {
			return nil, fmt.Errorf("%w: box at offset %d is a %s instead of a pssh", ErrParsePSSH, pos, box.Type())
		}
		if len(pssh.SystemID) != SystemIDSize {
			return nil, fmt.Errorf("%w: invalid system id size %d", ErrParsePSSH, len(pssh.SystemID))
		}

		info := KeySystemInfo{
			SystemID:    bytes.Clone(pssh.SystemID),
			PSSHData:    bytes.Clone(pssh.Data),
			PSSHVersion: pssh.Version,
		}
		if len(pssh.KIDs) > 0 {
			ids := make([][]byte, 0, len(pssh.KIDs))
			for _, kid := range pssh.KIDs {
				ids = append(ids, kid)
			}
			info.KeyIDs = NewKeyIDSet(ids...)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// PSSHBox serializes the record into a complete 'pssh' box.
func (i KeySystemInfo) PSSHBox() ([]byte, error) {
	if len(i.SystemID) != SystemIDSize {
		return nil, fmt.Errorf("%w: invalid system id size %d", ErrInvalidArgument, len(i.SystemID))
	}
	if i.PSSHVersion > 1 {
		return nil, fmt.Errorf("%w: unsupported pssh version %d", ErrInvalidArgument, i.PSSHVersion)
	}

	box := &mp4.PsshBox{
		Version:  i.PSSHVersion,
		SystemID: mp4.UUID(bytes.Clone(i.SystemID)),
		Data:     bytes.Clone(i.PSSHData),
	}
	if i.PSSHVersion == 1 {
		for _, id := range i.KeyIDs {
			if len(id) != KeyIDSize {
				return nil, fmt.Errorf("%w: invalid key id size %d", ErrInvalidArgument, len(id))
			}
			box.KIDs = append(box.KIDs, mp4.UUID(bytes.Clone(id)))
		}
	}

	var buf bytes.Buffer
	if err := box.Encode(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode pssh box: %w", err)
	}
	return buf.Bytes(), nil
}

// CommonSystemInfo returns a version 1 common system record listing keyIDs.
func CommonSystemInfo(keyIDs [][]byte) KeySystemInfo {
	return KeySystemInfo{
		SystemID:    bytes.Clone(CommonSystemID),
		KeyIDs:      NewKeyIDSet(keyIDs...),
		PSSHVersion: 1,
	}
}

// WidevineSystemInfo returns a version 0 Widevine record for the given
// WidevinePsshData bytes.
func WidevineSystemInfo(psshData []byte, keyIDs ...[]byte) KeySystemInfo {
	info := KeySystemInfo{
		SystemID: bytes.Clone(WidevineSystemID),
		PSSHData: bytes.Clone(psshData),
	}
	if len(keyIDs) > 0 {
		info.KeyIDs = NewKeyIDSet(keyIDs...)
	}
	return info
}
