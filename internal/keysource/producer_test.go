// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package keysource

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/onsi/gomega"
	"github.com/tidwall/gjson"

	"github.com/controlplaneio-fluxcd/drm-keysource/internal/drm"
	"github.com/controlplaneio-fluxcd/drm-keysource/internal/fetch"
	"github.com/controlplaneio-fluxcd/drm-keysource/internal/license"
	"github.com/controlplaneio-fluxcd/drm-keysource/internal/testutils"
)

// blockingRotationFetcher serves the non-rotation request and blocks
// every rotation request until ctx is done.
func blockingRotationFetcher() fetch.KeyFetcher {
	return fetch.KeyFetcherFunc(func(ctx context.Context, _ string, body []byte) ([]byte, error) {
		if !gjson.GetBytes(body, "crypto_period_count").Exists() {
			return okReply().Body, nil
		}
		<-ctx.Done()
		return nil, errors.Join(drm.ErrCanceled, ctx.Err())
	})
}

func newRotationSource(t *testing.T, opts ...Option) *Widevine {
	t.Helper()
	opts = append([]Option{
		WithKeyRotation(DefaultCryptoPeriodCount),
		WithRetry(1, time.Millisecond),
	}, opts...)
	s, err := NewWidevine(serverURL, opts...)
	if err != nil {
		t.Fatalf("failed to create key source: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestProducerState_String(t *testing.T) {
	g := NewWithT(t)
	g.Expect(StateIdle.String()).To(Equal("Idle"))
	g.Expect(StateAwaitingRelease.String()).To(Equal("AwaitingRelease"))
	g.Expect(StateProducing.String()).To(Equal("Producing"))
	g.Expect(StateStopped.String()).To(Equal("Stopped"))
	g.Expect(ProducerState(42).String()).To(Equal("Unknown"))
}

func TestWidevine_KeyRotation(t *testing.T) {
	t.Run("serves crypto periods around the consumer", func(t *testing.T) {
		g := NewWithT(t)
		fetcher := testutils.NewRotationFetcher()
		s := newRotationSource(t, WithKeyFetcher(fetcher))
		ctx := context.Background()

		g.Expect(fetchContent(s)).To(Succeed())
		g.Expect(s.State()).To(Equal(StateAwaitingRelease))
		g.Expect(fetcher.Calls()).To(Equal(1))

		for _, index := range []uint32{8, 17, 37, 38, 36, 39} {
			for _, label := range testutils.MockTrackTypes {
				key, err := s.GetCryptoPeriodKey(ctx, index, label)
				g.Expect(err).ToNot(HaveOccurred(), "period %d track %s", index, label)
				g.Expect(key.Key).To(Equal(testutils.MockRotationKey(label, index)))
				g.Expect(key.KeyID).To(Equal(testutils.MockKeyID(label)))
			}
		}
		g.Expect(s.State()).To(Equal(StateProducing))

		_, err := s.GetCryptoPeriodKey(ctx, 8, "SD")
		g.Expect(errors.Is(err, drm.ErrCryptoPeriodCollected)).To(BeTrue())
		g.Expect(drm.IsInvalidArgument(err)).To(BeTrue())

		bodies := fetcher.Bodies()
		g.Expect(gjson.GetBytes(bodies[0], "crypto_period_count").Exists()).To(BeFalse())
		g.Expect(gjson.GetBytes(bodies[1], "first_crypto_period_index").Uint()).To(BeEquivalentTo(7))
		g.Expect(gjson.GetBytes(bodies[1], "crypto_period_count").Uint()).To(BeEquivalentTo(10))
		g.Expect(gjson.GetBytes(bodies[2], "first_crypto_period_index").Uint()).To(BeEquivalentTo(17))
	})

	t.Run("starts at period zero", func(t *testing.T) {
		g := NewWithT(t)
		fetcher := testutils.NewRotationFetcher()
		s := newRotationSource(t, WithKeyFetcher(fetcher))

		g.Expect(fetchContent(s)).To(Succeed())
		key, err := s.GetCryptoPeriodKey(context.Background(), 0, "HD")
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(key.Key).To(Equal(testutils.MockRotationKey("HD", 0)))
		g.Expect(gjson.GetBytes(fetcher.Bodies()[1], "first_crypto_period_index").Uint()).To(BeEquivalentTo(0))
	})

	t.Run("disables GetKey once rotation is active", func(t *testing.T) {
		g := NewWithT(t)
		s := newRotationSource(t, WithKeyFetcher(testutils.NewRotationFetcher()))

		g.Expect(fetchContent(s)).To(Succeed())
		_, err := s.GetKey("SD")
		g.Expect(err).ToNot(HaveOccurred())

		_, err = s.GetCryptoPeriodKey(context.Background(), 3, "SD")
		g.Expect(err).ToNot(HaveOccurred())

		_, err = s.GetKey("SD")
		g.Expect(drm.IsInvalidArgument(err)).To(BeTrue())
		_, err = s.GetKeyByID(testutils.MockKeyID("SD"))
		g.Expect(drm.IsInvalidArgument(err)).To(BeTrue())
	})

	t.Run("reports unknown tracks", func(t *testing.T) {
		g := NewWithT(t)
		s := newRotationSource(t, WithKeyFetcher(testutils.NewRotationFetcher()))

		g.Expect(fetchContent(s)).To(Succeed())
		_, err := s.GetCryptoPeriodKey(context.Background(), 3, "UHD3")
		g.Expect(drm.IsNotFound(err)).To(BeTrue())
	})

	t.Run("requires rotation to be enabled", func(t *testing.T) {
		g := NewWithT(t)
		s := newTestSource(t, testutils.NewMockFetcher(okReply()))

		g.Expect(fetchContent(s)).To(Succeed())
		_, err := s.GetCryptoPeriodKey(context.Background(), 1, "SD")
		g.Expect(drm.IsInvalidArgument(err)).To(BeTrue())
	})

	t.Run("requires keys to be fetched first", func(t *testing.T) {
		g := NewWithT(t)
		s := newRotationSource(t, WithKeyFetcher(testutils.NewRotationFetcher()))

		_, err := s.GetCryptoPeriodKey(context.Background(), 1, "SD")
		g.Expect(drm.IsInvalidArgument(err)).To(BeTrue())
		g.Expect(s.State()).To(Equal(StateIdle))
	})

	t.Run("surfaces producer failures", func(t *testing.T) {
		g := NewWithT(t)
		fetcher := testutils.NewHandlerFetcher(func(request []byte) testutils.Reply {
			window := gjson.GetBytes(request, "crypto_period_count")
			if !window.Exists() {
				return okReply()
			}
			first := uint32(gjson.GetBytes(request, "first_crypto_period_index").Uint())
			if first > 10 {
				return statusReply("ACCESS_DENIED")
			}
			return testutils.Reply{Body: testutils.LicenseResponse(license.StatusOK,
				testutils.RotationTracks(first, uint32(window.Uint()), testutils.MockTrackTypes...))}
		})
		s := newRotationSource(t, WithKeyFetcher(fetcher), WithKeyRotation(4))
		ctx := context.Background()

		g.Expect(fetchContent(s)).To(Succeed())
		_, err := s.GetCryptoPeriodKey(ctx, 8, "SD")
		g.Expect(err).ToNot(HaveOccurred())

		_, err = s.GetCryptoPeriodKey(ctx, 12, "SD")
		g.Expect(drm.IsServerError(err)).To(BeTrue())
		g.Eventually(s.State).Should(Equal(StateStopped))

		_, err = s.GetCryptoPeriodKey(ctx, 13, "SD")
		g.Expect(drm.IsServerError(err)).To(BeTrue())
	})

	t.Run("rejects responses with a wrong period count", func(t *testing.T) {
		g := NewWithT(t)
		fetcher := testutils.NewHandlerFetcher(func(request []byte) testutils.Reply {
			if !gjson.GetBytes(request, "crypto_period_count").Exists() {
				return okReply()
			}
			first := uint32(gjson.GetBytes(request, "first_crypto_period_index").Uint())
			return testutils.Reply{Body: testutils.LicenseResponse(license.StatusOK,
				testutils.RotationTracks(first, 2, testutils.MockTrackTypes...))}
		})
		s := newRotationSource(t, WithKeyFetcher(fetcher), WithKeyRotation(3))

		g.Expect(fetchContent(s)).To(Succeed())
		_, err := s.GetCryptoPeriodKey(context.Background(), 1, "SD")
		g.Expect(errors.Is(err, drm.ErrMalformedResponse)).To(BeTrue())
	})

	t.Run("times out waiting for a period", func(t *testing.T) {
		g := NewWithT(t)
		s := newRotationSource(t,
			WithKeyFetcher(blockingRotationFetcher()),
			WithGetKeyTimeout(50*time.Millisecond))

		g.Expect(fetchContent(s)).To(Succeed())
		_, err := s.GetCryptoPeriodKey(context.Background(), 5, "SD")
		g.Expect(errors.Is(err, drm.ErrResourceExhausted)).To(BeTrue())
	})

	t.Run("returns when the caller context is canceled", func(t *testing.T) {
		g := NewWithT(t)
		s := newRotationSource(t, WithKeyFetcher(blockingRotationFetcher()))
		g.Expect(fetchContent(s)).To(Succeed())

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := s.GetCryptoPeriodKey(ctx, 5, "SD")
		g.Expect(drm.IsCanceled(err)).To(BeTrue())
	})

	t.Run("close releases waiting consumers", func(t *testing.T) {
		g := NewWithT(t)
		s := newRotationSource(t, WithKeyFetcher(blockingRotationFetcher()))
		g.Expect(fetchContent(s)).To(Succeed())

		result := make(chan error, 1)
		go func() {
			_, err := s.GetCryptoPeriodKey(context.Background(), 5, "SD")
			result <- err
		}()

		g.Eventually(s.State).Should(Equal(StateProducing))
		g.Expect(s.Close()).To(Succeed())

		var err error
		g.Eventually(result).Should(Receive(&err))
		g.Expect(drm.IsCanceled(err)).To(BeTrue())
		g.Expect(s.State()).To(Equal(StateStopped))

		_, err = s.GetCryptoPeriodKey(context.Background(), 5, "SD")
		g.Expect(drm.IsCanceled(err)).To(BeTrue())
	})

	t.Run("close stops a producer awaiting release", func(t *testing.T) {
		g := NewWithT(t)
		s := newRotationSource(t, WithKeyFetcher(testutils.NewRotationFetcher()))

		g.Expect(fetchContent(s)).To(Succeed())
		g.Expect(s.State()).To(Equal(StateAwaitingRelease))
		g.Expect(s.Close()).To(Succeed())
		g.Expect(s.State()).To(Equal(StateStopped))

		_, err := s.GetCryptoPeriodKey(context.Background(), 5, "SD")
		g.Expect(drm.IsCanceled(err)).To(BeTrue())
	})
}
