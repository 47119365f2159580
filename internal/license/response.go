// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package license

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/controlplaneio-fluxcd/drm-keysource/internal/drm"
)

const (
	// StatusOK is the status of a successful license response.
	StatusOK = "OK"

	// StatusInternalError is the status of a temporary server failure.
	StatusInternalError = "INTERNAL_ERROR"
)

// DecodeOptions describes the request a response answers.
type DecodeOptions struct {
	// Classic decodes tracks that carry only a key.
	Classic bool

	// Rotation is the requested window when keys are rotated.
	Rotation *RotationWindow

	// CommonSystemPSSH adds a common system record listing every key id
	// of a batch to each key of that batch.
	CommonSystemPSSH bool
}

// Response is a decoded license response.
type Response struct {
	// Batches holds one key map, or one per crypto period in rotation
	// mode starting at FirstCryptoPeriodIndex.
	Batches                []drm.EncryptionKeyMap
	FirstCryptoPeriodIndex uint32
}

type wirePSSH struct {
	DRMType string `json:"drm_type"`
	Data    []byte `json:"data"`
}

type wireResponseTrack struct {
	Type              string     `json:"type"`
	KeyID             []byte     `json:"key_id"`
	Key               []byte     `json:"key"`
	PSSH              []wirePSSH `json:"pssh"`
	CryptoPeriodIndex *uint32    `json:"crypto_period_index"`
}

type wireResponse struct {
	Status string              `json:"status"`
	Tracks []wireResponseTrack `json:"tracks"`
}

// DecodeResponse decodes the transport envelope and extracts the keys.
// Nothing is returned unless every track of every batch is valid.
func DecodeResponse(raw []byte, opts DecodeOptions) (*Response, error) {
	inner, err := openEnvelope(raw)
	if err != nil {
		return nil, drm.MalformedResponseError(err)
	}

	status := gjson.GetBytes(inner, "status")
	if !status.Exists() {
		return nil, drm.MalformedResponseError(errors.New("missing status"))
	}
	switch status.String() {
	case StatusOK:
	case StatusInternalError:
		return nil, drm.TransientStatusError(status.String())
	default:
		return nil, drm.ServerStatusError(status.String())
	}

	var resp wireResponse
	if err := json.Unmarshal(inner, &resp); err != nil {
		return nil, drm.MalformedResponseError(err)
	}
	if len(resp.Tracks) == 0 {
		return nil, drm.MalformedResponseError(errors.New("no tracks"))
	}

	var groups [][]wireResponseTrack
	if opts.Rotation != nil {
		groups, err = groupByCryptoPeriod(resp.Tracks, *opts.Rotation)
		if err != nil {
			return nil, drm.MalformedResponseError(err)
		}
	} else {
		groups = [][]wireResponseTrack{resp.Tracks}
	}

	out := &Response{Batches: make([]drm.EncryptionKeyMap, 0, len(groups))}
	if opts.Rotation != nil {
		out.FirstCryptoPeriodIndex = opts.Rotation.FirstCryptoPeriodIndex
	}
	for _, tracks := range groups {
		batch, err := decodeBatch(tracks, opts)
		if err != nil {
			return nil, drm.MalformedResponseError(err)
		}
		out.Batches = append(out.Batches, batch)
	}
	return out, nil
}

func openEnvelope(raw []byte) ([]byte, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errors.New("envelope is not valid JSON")
	}
	field := gjson.GetBytes(raw, "response")
	if field.Type != gjson.String {
		return nil, errors.New("envelope has no response field")
	}
	inner, err := base64.StdEncoding.DecodeString(field.String())
	if err != nil {
		return nil, fmt.Errorf("invalid response encoding: %w", err)
	}
	if !gjson.ValidBytes(inner) {
		return nil, errors.New("response is not valid JSON")
	}
	return inner, nil
}

// groupByCryptoPeriod splits tracks into consecutive crypto periods.
// Tracks of one period must be adjacent and periods must cover the
// requested window exactly.
func groupByCryptoPeriod(tracks []wireResponseTrack, w RotationWindow) ([][]wireResponseTrack, error) {
	var groups [][]wireResponseTrack
	current := w.FirstCryptoPeriodIndex
	for i, t := range tracks {
		if t.CryptoPeriodIndex == nil {
			return nil, fmt.Errorf("track %d has no crypto period index", i)
		}
		idx := *t.CryptoPeriodIndex
		switch {
		case len(groups) == 0 && idx == current:
			groups = append(groups, nil)
		case len(groups) > 0 && idx == current:
		case len(groups) > 0 && idx == current+1:
			current++
			groups = append(groups, nil)
		default:
			return nil, fmt.Errorf("expecting crypto period index %d or %d, got %d at track %d",
				current, current+1, idx, i)
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], t)
	}
	if uint32(len(groups)) != w.CryptoPeriodCount {
		return nil, fmt.Errorf("expecting %d crypto periods, got %d", w.CryptoPeriodCount, len(groups))
	}
	return groups, nil
}

func decodeBatch(tracks []wireResponseTrack, opts DecodeOptions) (drm.EncryptionKeyMap, error) {
	batch := make(drm.EncryptionKeyMap, len(tracks))
	for _, t := range tracks {
		if t.Type == "" {
			return nil, errors.New("track has no type")
		}
		if _, ok := batch[t.Type]; ok {
			return nil, fmt.Errorf("duplicate track type %s", t.Type)
		}
		if len(t.Key) == 0 {
			return nil, fmt.Errorf("track %s has no key", t.Type)
		}

		key := drm.EncryptionKey{Key: t.Key}
		if !opts.Classic {
			if len(t.KeyID) != drm.KeyIDSize {
				return nil, fmt.Errorf("track %s has a key id of %d bytes, expected %d",
					t.Type, len(t.KeyID), drm.KeyIDSize)
			}
			key.KeyID = t.KeyID

			psshData, err := widevinePSSHData(t)
			if err != nil {
				return nil, err
			}
			key.KeySystemInfo = []drm.KeySystemInfo{drm.WidevineSystemInfo(psshData, t.KeyID)}
		}
		batch[t.Type] = key
	}

	if opts.CommonSystemPSSH && !opts.Classic {
		common := drm.CommonSystemInfo(batch.KeyIDs())
		for label, key := range batch {
			key.KeySystemInfo = append(key.KeySystemInfo, common.Clone())
			batch[label] = key
		}
	}
	return batch, nil
}

func widevinePSSHData(t wireResponseTrack) ([]byte, error) {
	if len(t.PSSH) != 1 {
		return nil, fmt.Errorf("track %s has %d pssh entries, expected 1", t.Type, len(t.PSSH))
	}
	if t.PSSH[0].DRMType != drm.DRMTypeWidevine {
		return nil, fmt.Errorf("track %s has drm type %q, expected %q", t.Type, t.PSSH[0].DRMType, drm.DRMTypeWidevine)
	}
	return t.PSSH[0].Data, nil
}
