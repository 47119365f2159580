// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package keysource

import (
	"errors"

	"github.com/controlplaneio-fluxcd/drm-keysource/internal/drm"
	"github.com/controlplaneio-fluxcd/drm-keysource/internal/keypool"
	"github.com/controlplaneio-fluxcd/drm-keysource/internal/license"
	"github.com/controlplaneio-fluxcd/drm-keysource/internal/metrics"
)

// ProducerState is the lifecycle state of the rotation producer.
type ProducerState int

const (
	// StateIdle is the state before the first successful FetchKeys.
	StateIdle ProducerState = iota
	// StateAwaitingRelease is the state until the first GetCryptoPeriodKey.
	StateAwaitingRelease
	// StateProducing is the state while batches are being fetched.
	StateProducing
	// StateStopped is the state after a fetch failure or Close.
	StateStopped
)

func (s ProducerState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAwaitingRelease:
		return "AwaitingRelease"
	case StateProducing:
		return "Producing"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// produce runs the rotation producer until a fetch fails or the key
// source is closed.
func (s *Widevine) produce(content license.Content) {
	defer close(s.done)

	select {
	case <-s.release:
	case <-s.ctx.Done():
		return
	}

	s.mu.Lock()
	pool, first := s.pool, s.firstIndex
	s.mu.Unlock()

	err := s.produceBatches(pool, content, first)
	if errors.Is(err, drm.ErrCanceled) {
		s.log.V(1).Info("key rotation stopped")
	} else {
		s.log.Error(err, "key rotation failed, no more crypto periods will be produced")
	}
	pool.Stop(err)

	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()
}

func (s *Widevine) produceBatches(pool *keypool.Pool[drm.EncryptionKeyMap], content license.Content, first uint32) error {
	for {
		window := &license.RotationWindow{
			FirstCryptoPeriodIndex: first,
			CryptoPeriodCount:      s.cryptoPeriodCount,
		}
		resp, err := s.fetch(s.ctx, content, window)
		if err != nil {
			return err
		}

		for _, batch := range resp.Batches {
			if err := pool.Push(s.ctx, batch); err != nil {
				if s.ctx.Err() != nil || errors.Is(err, keypool.ErrStopped) {
					return drm.ErrCanceled
				}
				return err
			}
			metrics.RecordCryptoPeriodProduced()
			metrics.SetKeyPoolBatches(pool.Len())
		}

		s.log.V(1).Info("crypto periods produced",
			"first", window.FirstCryptoPeriodIndex, "last", window.Last())
		first += s.cryptoPeriodCount
	}
}
