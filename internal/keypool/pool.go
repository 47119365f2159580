// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

// Package keypool implements the bounded window of key batches shared
// between the rotation producer and the consumers of crypto period keys.
//
// Items are addressed by position, the position of the first item being
// the head of the pool. The producer appends items and blocks while the
// pool is full. Consumers peek items by position, waiting for positions
// past the tail. A peek advances the head so that the requested position
// sits in the middle of the window, which is the only way items are
// discarded.
package keypool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/controlplaneio-fluxcd/drm-keysource/internal/drm"
)

// ErrStopped is returned by Push once the pool is stopped, and by Peek
// when the pool was stopped without an error.
var ErrStopped = errors.New("key pool stopped")

// Pool is a bounded positional queue. It is safe for concurrent use.
type Pool[T any] struct {
	mu       sync.Mutex
	items    []T
	head     uint32
	capacity int
	stopped  bool
	stopErr  error

	// changed is closed and replaced on every state change.
	changed chan struct{}
}

// New returns a pool holding at most capacity items, the first pushed
// item being at position head.
func New[T any](capacity int, head uint32) *Pool[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Pool[T]{
		items:    make([]T, 0, capacity),
		head:     head,
		capacity: capacity,
		changed:  make(chan struct{}),
	}
}

// Push appends item, waiting while the pool is full.
func (p *Pool[T]) Push(ctx context.Context, item T) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.items) >= p.capacity && !p.stopped {
		if err := p.wait(ctx); err != nil {
			return err
		}
	}
	if p.stopped {
		return ErrStopped
	}

	p.items = append(p.items, item)
	p.broadcast()
	return nil
}

// Peek returns the item at pos without removing it.
// Positions before the head fail with drm.ErrCryptoPeriodCollected.
// Positions past the tail are waited for; while waiting on a full pool
// the oldest item is dropped to let the producer advance. Once the pool
// is stopped, positions past the tail fail with the stop error.
func (p *Pool[T]) Peek(ctx context.Context, pos uint32) (T, error) {
	var zero T

	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if pos < p.head {
			return zero, fmt.Errorf("%w: position %d, oldest available %d", drm.ErrCryptoPeriodCollected, pos, p.head)
		}
		if uint64(pos) < uint64(p.head)+uint64(len(p.items)) {
			break
		}
		if p.stopped {
			return zero, p.stopErr
		}
		if len(p.items) >= p.capacity {
			p.drop(1)
			continue
		}
		if err := p.wait(ctx); err != nil {
			return zero, err
		}
	}

	item := p.items[pos-p.head]
	p.collect(pos)
	return item, nil
}

// collect drops the items before pos until pos is in the middle of
// the window.
func (p *Pool[T]) collect(pos uint32) {
	var n int
	for uint64(pos) > uint64(p.head)+uint64(n)+uint64(p.capacity/2) {
		n++
	}
	if n > 0 {
		p.drop(n)
	}
}

func (p *Pool[T]) drop(n int) {
	var zero T
	for i := range n {
		p.items[i] = zero
	}
	p.items = append(p.items[:0], p.items[n:]...)
	p.head += uint32(n)
	p.broadcast()
}

// Stop wakes every waiter. Pending and future pushes fail with
// ErrStopped, peeks past the tail fail with err. Only the first call
// takes effect.
func (p *Pool[T]) Stop(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return
	}
	if err == nil {
		err = ErrStopped
	}
	p.stopped = true
	p.stopErr = err
	p.broadcast()
}

// Stopped reports whether Stop was called.
func (p *Pool[T]) Stopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// Head returns the position of the oldest item still held.
func (p *Pool[T]) Head() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.head
}

// Len returns the number of items held.
func (p *Pool[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// Capacity returns the maximum number of items held.
func (p *Pool[T]) Capacity() int {
	return p.capacity
}

// wait releases the lock until the next state change or until ctx is done.
// It must be called with the lock held.
func (p *Pool[T]) wait(ctx context.Context) error {
	changed := p.changed
	p.mu.Unlock()
	defer p.mu.Lock()

	select {
	case <-changed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool[T]) broadcast() {
	close(p.changed)
	p.changed = make(chan struct{})
}
