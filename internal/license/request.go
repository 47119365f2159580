// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package license

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/controlplaneio-fluxcd/drm-keysource/internal/drm"
	"github.com/controlplaneio-fluxcd/drm-keysource/internal/signer"
)

// RotationWindow is the range of crypto periods requested in one batch.
type RotationWindow struct {
	FirstCryptoPeriodIndex uint32
	CryptoPeriodCount      uint32
}

// Last returns the index of the last crypto period in the window.
func (w RotationWindow) Last() uint32 {
	return w.FirstCryptoPeriodIndex + w.CryptoPeriodCount - 1
}

// RequestContext holds everything needed to build one license request.
type RequestContext struct {
	Content          Content
	ProtectionScheme drm.ProtectionScheme
	Tracks           []drm.TrackType
	GroupID          []byte

	// Rotation is set when keys for a range of crypto periods are requested.
	Rotation *RotationWindow
}

type wireTrack struct {
	Type drm.TrackType `json:"type"`
}

// wireRequest fields are declared in lexical order of their JSON names.
type wireRequest struct {
	AssetID                *uint32     `json:"asset_id,omitempty"`
	ContentID              []byte      `json:"content_id,omitempty"`
	CryptoPeriodCount      *uint32     `json:"crypto_period_count,omitempty"`
	DRMTypes               []string    `json:"drm_types"`
	FirstCryptoPeriodIndex *uint32     `json:"first_crypto_period_index,omitempty"`
	GroupID                []byte      `json:"group_id,omitempty"`
	Policy                 string      `json:"policy,omitempty"`
	ProtectionScheme       uint32      `json:"protection_scheme,omitempty"`
	PSSHData               []byte      `json:"pssh_data,omitempty"`
	Tracks                 []wireTrack `json:"tracks"`
}

// Marshal returns the canonical JSON form of the request. Schemes that
// are not valid are left out of the request.
func (rc RequestContext) Marshal() ([]byte, error) {
	if rc.Content == nil {
		return nil, fmt.Errorf("%w: request has no content identification", drm.ErrInvalidArgument)
	}

	req := wireRequest{
		DRMTypes: []string{drm.DRMTypeWidevine},
		GroupID:  rc.GroupID,
		Tracks:   make([]wireTrack, 0, len(rc.Tracks)),
	}
	rc.Content.apply(&req)

	if rc.ProtectionScheme.Valid() {
		req.ProtectionScheme = uint32(rc.ProtectionScheme.Normalize())
	}
	for _, t := range rc.Tracks {
		req.Tracks = append(req.Tracks, wireTrack{Type: t})
	}
	if w := rc.Rotation; w != nil {
		if w.CryptoPeriodCount == 0 {
			return nil, fmt.Errorf("%w: crypto period count must be positive", drm.ErrInvalidArgument)
		}
		first, count := w.FirstCryptoPeriodIndex, w.CryptoPeriodCount
		req.FirstCryptoPeriodIndex = &first
		req.CryptoPeriodCount = &count
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(req); err != nil {
		return nil, fmt.Errorf("failed to encode license request: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// BuildMessage returns the body sent to the key server. Without a signer
// the request is sent as is, otherwise it is wrapped in a signed envelope.
func BuildMessage(request []byte, s signer.RequestSigner) ([]byte, error) {
	if s == nil {
		return request, nil
	}

	signature, err := s.Sign(request)
	if err != nil {
		return nil, drm.SigningError(err)
	}

	msg := []byte(`{}`)
	for _, field := range []struct{ path, value string }{
		{"request", base64.StdEncoding.EncodeToString(request)},
		{"signature", base64.StdEncoding.EncodeToString(signature)},
		{"signer", s.Name()},
	} {
		if msg, err = sjson.SetBytes(msg, field.path, field.value); err != nil {
			return nil, fmt.Errorf("%w: failed to build signed envelope: %w", drm.ErrInternal, err)
		}
	}
	return msg, nil
}

// SignedMessage is a decoded signed envelope.
type SignedMessage struct {
	Request   []byte
	Signature []byte
	Signer    string
}

// ParseMessage decodes a message produced by BuildMessage. Unsigned
// requests are returned with an empty signature.
func ParseMessage(msg []byte) (*SignedMessage, error) {
	if !gjson.ValidBytes(msg) {
		return nil, fmt.Errorf("%w: message is not valid JSON", drm.ErrInvalidArgument)
	}

	request := gjson.GetBytes(msg, "request")
	if !request.Exists() {
		return &SignedMessage{Request: bytes.Clone(msg)}, nil
	}

	raw, err := base64.StdEncoding.DecodeString(request.String())
	if err != nil {
		return nil, fmt.Errorf("%w: invalid request encoding: %w", drm.ErrInvalidArgument, err)
	}
	signature, err := base64.StdEncoding.DecodeString(gjson.GetBytes(msg, "signature").String())
	if err != nil {
		return nil, fmt.Errorf("%w: invalid signature encoding: %w", drm.ErrInvalidArgument, err)
	}
	name := gjson.GetBytes(msg, "signer").String()
	if name == "" {
		return nil, fmt.Errorf("%w: signed message has no signer", drm.ErrInvalidArgument)
	}
	return &SignedMessage{Request: raw, Signature: signature, Signer: name}, nil
}
