// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package keysource

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/controlplaneio-fluxcd/drm-keysource/internal/drm"
	"github.com/controlplaneio-fluxcd/drm-keysource/internal/fetch"
	"github.com/controlplaneio-fluxcd/drm-keysource/internal/keypool"
	"github.com/controlplaneio-fluxcd/drm-keysource/internal/license"
	"github.com/controlplaneio-fluxcd/drm-keysource/internal/metrics"
	"github.com/controlplaneio-fluxcd/drm-keysource/internal/signer"
)

var _ drm.KeySource = &Widevine{}

// Widevine is a key source backed by a Widevine license service.
// It is safe for concurrent use. Close must be called to stop the
// rotation producer.
type Widevine struct {
	serverURL         string
	fetcher           fetch.KeyFetcher
	signer            signer.RequestSigner
	scheme            drm.ProtectionScheme
	tracks            []drm.TrackType
	groupID           []byte
	commonPSSH        bool
	cryptoPeriodCount uint32
	poolCapacity      int
	getKeyTimeout     time.Duration
	maxAttempts       uint
	retryInterval     time.Duration
	log               logr.Logger

	// ctx is canceled by Close and bounds the producer.
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	keys       drm.EncryptionKeyMap
	state      ProducerState
	pool       *keypool.Pool[drm.EncryptionKeyMap]
	firstIndex uint32
	release    chan struct{}
	done       chan struct{}
	closed     bool
	closeOnce  sync.Once
}

// NewWidevine returns a key source requesting keys from serverURL.
func NewWidevine(serverURL string, opts ...Option) (*Widevine, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("%w: license server URL is required", drm.ErrInvalidArgument)
	}

	s := &Widevine{
		serverURL:     serverURL,
		scheme:        drm.SchemeCENC,
		tracks:        drm.DefaultTracks(),
		getKeyTimeout: DefaultGetKeyTimeout,
		maxAttempts:   DefaultMaxAttempts,
		retryInterval: DefaultRetryInterval,
		log:           logr.Discard(),
		release:       make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.fetcher == nil {
		s.fetcher = fetch.NewHTTPFetcher(fetch.FetchOpt.WithLogger(s.log))
	}
	if s.maxAttempts == 0 {
		s.maxAttempts = 1
	}
	if s.poolCapacity <= 0 {
		s.poolCapacity = int(s.cryptoPeriodCount)
	}
	if len(s.tracks) == 0 {
		return nil, fmt.Errorf("%w: at least one track type is required", drm.ErrInvalidArgument)
	}
	if !s.scheme.Valid() {
		s.log.Info("ignoring unrecognized protection scheme", "scheme", s.scheme.String())
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// FetchKeys requests the keys identified by the init data and stores
// them for GetKey. With key rotation enabled, the first successful call
// starts the producer, which waits for the first GetCryptoPeriodKey.
func (s *Widevine) FetchKeys(ctx context.Context, initDataType drm.InitDataType, initData []byte) error {
	content, err := license.ContentFromInitData(initDataType, initData)
	if err != nil {
		return err
	}
	return s.fetchContent(ctx, content)
}

// FetchContentKeys requests the keys of a content id under a policy.
func (s *Widevine) FetchContentKeys(ctx context.Context, contentID []byte, policy string) error {
	if len(contentID) == 0 {
		return fmt.Errorf("%w: content id is required", drm.ErrInvalidArgument)
	}
	return s.fetchContent(ctx, license.ContentID{ID: contentID, Policy: policy})
}

func (s *Widevine) fetchContent(ctx context.Context, content license.Content) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return drm.ErrCanceled
	}

	// Close releases the fetch along with the producer.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	resp, err := s.fetch(ctx, content, nil)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return drm.ErrCanceled
	}
	s.keys = resp.Batches[0]

	if s.cryptoPeriodCount > 0 && s.state == StateIdle {
		s.state = StateAwaitingRelease
		go s.produce(content)
	}
	return nil
}

// GetKey returns the key of the track label from the last FetchKeys call.
// It fails with drm.ErrInvalidArgument once key rotation is active.
func (s *Widevine) GetKey(label string) (drm.EncryptionKey, error) {
	keys, err := s.staticKeys()
	if err != nil {
		return drm.EncryptionKey{}, err
	}
	key, ok := keys.Get(label)
	if !ok {
		return drm.EncryptionKey{}, fmt.Errorf("%w: track %q", drm.ErrNotFound, label)
	}
	return key, nil
}

// GetKeyByID returns the key with the given key id from the last
// FetchKeys call.
func (s *Widevine) GetKeyByID(keyID []byte) (drm.EncryptionKey, error) {
	keys, err := s.staticKeys()
	if err != nil {
		return drm.EncryptionKey{}, err
	}
	key, ok := keys.FindByKeyID(keyID)
	if !ok {
		return drm.EncryptionKey{}, fmt.Errorf("%w: key id %x", drm.ErrNotFound, keyID)
	}
	return key, nil
}

func (s *Widevine) staticKeys() (drm.EncryptionKeyMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pool != nil {
		return nil, fmt.Errorf("%w: key rotation is active, use GetCryptoPeriodKey", drm.ErrInvalidArgument)
	}
	if s.keys == nil {
		return nil, fmt.Errorf("%w: no keys fetched", drm.ErrNotFound)
	}
	return s.keys, nil
}

// GetCryptoPeriodKey returns the key of the track label for a crypto
// period. The first call starts key rotation one period before index.
// Periods already discarded fail with drm.ErrCryptoPeriodCollected,
// waits longer than the get-key timeout with drm.ErrResourceExhausted.
func (s *Widevine) GetCryptoPeriodKey(ctx context.Context, index uint32, label string) (drm.EncryptionKey, error) {
	pool, err := s.activateRotation(index)
	if err != nil {
		return drm.EncryptionKey{}, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.getKeyTimeout)
	defer cancel()

	batch, err := pool.Peek(waitCtx, index)
	metrics.SetKeyPoolBatches(pool.Len())
	if err != nil {
		switch {
		case errors.Is(err, drm.ErrCryptoPeriodCollected):
			metrics.RecordCryptoPeriodLookup(metrics.LookupCollected)
			return drm.EncryptionKey{}, err
		case ctx.Err() != nil:
			metrics.RecordCryptoPeriodLookup(metrics.LookupFailed)
			return drm.EncryptionKey{}, fmt.Errorf("%w: %w", drm.ErrCanceled, ctx.Err())
		case errors.Is(err, context.DeadlineExceeded):
			metrics.RecordCryptoPeriodLookup(metrics.LookupTimeout)
			return drm.EncryptionKey{}, fmt.Errorf("%w: crypto period %d not available after %s",
				drm.ErrResourceExhausted, index, s.getKeyTimeout)
		default:
			metrics.RecordCryptoPeriodLookup(metrics.LookupFailed)
			return drm.EncryptionKey{}, fmt.Errorf("crypto period %d not available: %w", index, err)
		}
	}

	key, ok := batch.Get(label)
	if !ok {
		metrics.RecordCryptoPeriodLookup(metrics.LookupNotFound)
		return drm.EncryptionKey{}, fmt.Errorf("%w: track %q in crypto period %d", drm.ErrNotFound, label, index)
	}
	metrics.RecordCryptoPeriodLookup(metrics.LookupHit)
	return key, nil
}

// activateRotation returns the key pool, creating it and releasing the
// producer on the first call.
func (s *Widevine) activateRotation(index uint32) (*keypool.Pool[drm.EncryptionKeyMap], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cryptoPeriodCount == 0 {
		return nil, fmt.Errorf("%w: key rotation is not enabled", drm.ErrInvalidArgument)
	}

	switch s.state {
	case StateIdle:
		return nil, fmt.Errorf("%w: keys must be fetched before requesting crypto period keys", drm.ErrInvalidArgument)
	case StateAwaitingRelease:
		// Start one period early so that a consumer stepping back once
		// is still served.
		first := index
		if first > 0 {
			first--
		}
		s.firstIndex = first
		s.pool = keypool.New[drm.EncryptionKeyMap](s.poolCapacity, first)
		s.state = StateProducing
		close(s.release)
	case StateStopped:
		if s.pool == nil {
			return nil, drm.ErrCanceled
		}
	}
	return s.pool, nil
}

// State returns the state of the rotation producer.
func (s *Widevine) State() ProducerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close stops the rotation producer, releases blocked callers and
// in-flight fetches with drm.ErrCanceled and waits for the producer to exit.
func (s *Widevine) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()

		s.mu.Lock()
		s.closed = true
		if s.pool != nil {
			s.pool.Stop(drm.ErrCanceled)
		}
		started := s.state != StateIdle
		s.state = StateStopped
		s.mu.Unlock()

		if started {
			<-s.done
		}
	})
	return nil
}
