// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package license

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/controlplaneio-fluxcd/drm-keysource/internal/drm"
)

// Content identifies what keys are requested for. It is one of
// ContentID, PSSHData, KeyIDs or ClassicAsset.
type Content interface {
	apply(r *wireRequest)

	// Classic reports whether the response uses the legacy key only format.
	Classic() bool
}

// ContentID identifies content by an opaque id and a license policy.
type ContentID struct {
	ID     []byte
	Policy string
}

func (c ContentID) apply(r *wireRequest) {
	r.ContentID = c.ID
	r.Policy = c.Policy
}

// Classic returns false.
func (ContentID) Classic() bool { return false }

// PSSHData identifies content by Widevine PSSH data.
type PSSHData struct {
	Data []byte
}

func (c PSSHData) apply(r *wireRequest) {
	r.PSSHData = c.Data
}

// Classic returns false.
func (PSSHData) Classic() bool { return false }

// KeyIDs identifies content by its key ids. They are sent as Widevine
// PSSH data.
type KeyIDs struct {
	IDs [][]byte
}

func (c KeyIDs) apply(r *wireRequest) {
	r.PSSHData = drm.WidevinePsshData{KeyIDs: c.IDs}.Marshal()
}

// Classic returns false.
func (KeyIDs) Classic() bool { return false }

// ClassicAsset identifies Widevine Classic content by asset id.
type ClassicAsset struct {
	AssetID uint32
}

func (c ClassicAsset) apply(r *wireRequest) {
	id := c.AssetID
	r.AssetID = &id
}

// Classic returns true.
func (ClassicAsset) Classic() bool { return true }

// ContentFromInitData maps typed init data to a content identification.
func ContentFromInitData(initDataType drm.InitDataType, initData []byte) (Content, error) {
	switch initDataType {
	case drm.InitDataCENC:
		infos, err := drm.ParsePSSHBoxes(initData)
		if err != nil {
			return nil, err
		}
		for _, info := range infos {
			if drm.IsWidevine(info.SystemID) {
				return PSSHData{Data: bytes.Clone(info.PSSHData)}, nil
			}
		}
		// Fall back to the key ids of a version 1 box of another system.
		for _, info := range infos {
			if len(info.KeyIDs) > 0 {
				return KeyIDs{IDs: info.KeyIDs}, nil
			}
		}
		return nil, fmt.Errorf("%w: no supported PSSH boxes found", drm.ErrInvalidArgument)
	case drm.InitDataWebM:
		if len(initData) == 0 {
			return nil, fmt.Errorf("%w: empty WebM key id", drm.ErrInvalidArgument)
		}
		return KeyIDs{IDs: [][]byte{bytes.Clone(initData)}}, nil
	case drm.InitDataWidevineClassic:
		if len(initData) != 4 {
			return nil, fmt.Errorf("%w: invalid asset id size %d, expected 4", drm.ErrInvalidArgument, len(initData))
		}
		return ClassicAsset{AssetID: binary.BigEndian.Uint32(initData)}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported init data type %s", drm.ErrInvalidArgument, initDataType)
	}
}
