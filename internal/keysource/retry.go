// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package keysource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/controlplaneio-fluxcd/drm-keysource/internal/drm"
	"github.com/controlplaneio-fluxcd/drm-keysource/internal/license"
	"github.com/controlplaneio-fluxcd/drm-keysource/internal/metrics"
)

// fetch sends one license request, retrying timeouts and transient
// server errors with the same message, and decodes the response.
func (s *Widevine) fetch(ctx context.Context, content license.Content, window *license.RotationWindow) (*license.Response, error) {
	rc := license.RequestContext{
		Content:          content,
		ProtectionScheme: s.scheme,
		Tracks:           s.tracks,
		GroupID:          s.groupID,
		Rotation:         window,
	}
	request, err := rc.Marshal()
	if err != nil {
		return nil, err
	}
	s.log.V(1).Info("license request", "request", string(request))

	msg, err := license.BuildMessage(request, s.signer)
	if err != nil {
		return nil, err
	}

	decodeOpts := license.DecodeOptions{
		Classic:          content.Classic(),
		Rotation:         window,
		CommonSystemPSSH: s.commonPSSH,
	}

	attempts := 0
	operation := func() (*license.Response, error) {
		attempts++
		start := time.Now()

		resp, err := s.fetcher.FetchKeys(ctx, s.serverURL, msg)
		if err == nil {
			var decoded *license.Response
			decoded, err = license.DecodeResponse(resp, decodeOpts)
			if err == nil {
				metrics.RecordLicenseRequest(metrics.OutcomeOK, time.Since(start))
				return decoded, nil
			}
		}

		metrics.RecordLicenseRequest(outcome(err), time.Since(start))
		if drm.IsRetryable(err) && ctx.Err() == nil {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(&backoff.ExponentialBackOff{
			InitialInterval: s.retryInterval,
			Multiplier:      2,
			MaxInterval:     time.Minute,
		}),
		backoff.WithMaxTries(s.maxAttempts),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.log.Info("retrying license request", "attempt", attempts, "after", next.String(), "error", err.Error())
		}),
	)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Unwrap()
		}
		if ctx.Err() != nil && !drm.IsCanceled(err) {
			err = fmt.Errorf("%w: %w", drm.ErrCanceled, err)
		}
		return nil, fmt.Errorf("license request failed after %d attempt(s): %w", attempts, err)
	}
	return resp, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, drm.ErrCanceled):
		return metrics.OutcomeCanceled
	case errors.Is(err, drm.ErrTimeout):
		return metrics.OutcomeTimeout
	case errors.Is(err, drm.ErrTransientServer):
		return metrics.OutcomeTransientError
	case errors.Is(err, drm.ErrServer):
		return metrics.OutcomeServerError
	default:
		return metrics.OutcomeTransportError
	}
}
