// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package keysource

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/go-logr/logr"

	"github.com/controlplaneio-fluxcd/drm-keysource/internal/drm"
)

var _ drm.KeySource = &Raw{}

// RawKey is a key and key id pair supplied by the operator.
type RawKey struct {
	KeyID []byte
	Key   []byte
}

// RawOption configures a Raw key source.
type RawOption func(*rawOptions)

type rawOptions struct {
	iv   []byte
	pssh []byte
	log  logr.Logger
}

// WithRawIV sets the IV attached to every key.
func WithRawIV(iv []byte) RawOption {
	return func(o *rawOptions) {
		o.iv = bytes.Clone(iv)
	}
}

// WithRawPSSH sets the concatenated 'pssh' boxes attached to every key.
// Without boxes a common system record listing all key ids is attached.
func WithRawPSSH(boxes []byte) RawOption {
	return func(o *rawOptions) {
		o.pssh = bytes.Clone(boxes)
	}
}

// WithRawLogger sets the logger.
func WithRawLogger(log logr.Logger) RawOption {
	return func(o *rawOptions) {
		o.log = log
	}
}

// Raw is a key source serving fixed keys. The empty label, when
// present, is the key of every track without a key of its own.
type Raw struct {
	keys     drm.EncryptionKeyMap
	log      logr.Logger
	warnOnce sync.Once
}

// NewRaw returns a key source serving keys indexed by track label.
// Keys and key ids must be 16 bytes long.
func NewRaw(keys map[string]RawKey, opts ...RawOption) (*Raw, error) {
	o := rawOptions{log: logr.Discard()}
	for _, opt := range opts {
		opt(&o)
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: at least one key is required", drm.ErrInvalidArgument)
	}

	var systems []drm.KeySystemInfo
	if len(o.pssh) > 0 {
		infos, err := drm.ParsePSSHBoxes(o.pssh)
		if err != nil {
			return nil, err
		}
		systems = infos
	} else {
		ids := make([][]byte, 0, len(keys))
		for _, k := range keys {
			ids = append(ids, k.KeyID)
		}
		systems = []drm.KeySystemInfo{drm.CommonSystemInfo(ids)}
	}

	m := make(drm.EncryptionKeyMap, len(keys))
	for label, k := range keys {
		if len(k.KeyID) != drm.KeyIDSize {
			return nil, fmt.Errorf("%w: key id of track %q is %d bytes, must be %d",
				drm.ErrInvalidArgument, label, len(k.KeyID), drm.KeyIDSize)
		}
		if len(k.Key) != 16 {
			return nil, fmt.Errorf("%w: key of track %q is %d bytes, must be 16",
				drm.ErrInvalidArgument, label, len(k.Key))
		}
		key := drm.EncryptionKey{
			Key:   bytes.Clone(k.Key),
			KeyID: bytes.Clone(k.KeyID),
			IV:    bytes.Clone(o.iv),
		}
		for _, info := range systems {
			key.KeySystemInfo = append(key.KeySystemInfo, info.Clone())
		}
		m[label] = key
	}

	return &Raw{keys: m, log: o.log}, nil
}

// FetchKeys is a no-op, the keys are known upfront.
func (r *Raw) FetchKeys(context.Context, drm.InitDataType, []byte) error {
	return nil
}

// GetKey returns the key of the track label, falling back to the key
// of the empty label.
func (r *Raw) GetKey(label string) (drm.EncryptionKey, error) {
	if key, ok := r.keys.Get(label); ok {
		return key, nil
	}
	if key, ok := r.keys.Get(""); ok {
		return key, nil
	}
	return drm.EncryptionKey{}, fmt.Errorf("%w: track %q", drm.ErrNotFound, label)
}

// GetKeyByID returns the key with the given key id.
func (r *Raw) GetKeyByID(keyID []byte) (drm.EncryptionKey, error) {
	key, ok := r.keys.FindByKeyID(keyID)
	if !ok {
		return drm.EncryptionKey{}, fmt.Errorf("%w: key id %x", drm.ErrNotFound, keyID)
	}
	return key, nil
}

// GetCryptoPeriodKey derives a key per crypto period by rotating the
// bytes of the key, the key id and the PSSH data left by index.
// It is meant for testing packagers only.
func (r *Raw) GetCryptoPeriodKey(_ context.Context, index uint32, label string) (drm.EncryptionKey, error) {
	key, err := r.GetKey(label)
	if err != nil {
		return drm.EncryptionKey{}, err
	}

	r.warnOnce.Do(func() {
		r.log.Info("raw key rotation derives keys by byte rotation and must not be used in production")
	})

	key.KeyID = rotateLeft(key.KeyID, index)
	key.Key = rotateLeft(key.Key, index)
	for i, info := range key.KeySystemInfo {
		info.PSSHData = rotateLeft(info.PSSHData, index)
		if len(info.KeyIDs) > 0 {
			ids := make([][]byte, 0, len(info.KeyIDs))
			for _, id := range info.KeyIDs {
				ids = append(ids, rotateLeft(id, index))
			}
			info.KeyIDs = drm.NewKeyIDSet(ids...)
		}
		key.KeySystemInfo[i] = info
	}
	return key, nil
}

func rotateLeft(b []byte, n uint32) []byte {
	if len(b) == 0 {
		return b
	}
	k := int(n % uint32(len(b)))
	return slices.Concat(b[k:], b[:k])
}

// Close is a no-op.
func (r *Raw) Close() error {
	return nil
}
