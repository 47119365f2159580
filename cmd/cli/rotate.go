// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/controlplaneio-fluxcd/drm-keysource/internal/config"
	"github.com/controlplaneio-fluxcd/drm-keysource/internal/drm"
	"github.com/controlplaneio-fluxcd/drm-keysource/internal/export"
	"github.com/controlplaneio-fluxcd/drm-keysource/internal/metrics"
)

var rotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Fetch the rotating keys of a range of crypto periods",
	Example: `  # Fetch the keys of crypto periods 100 to 119
  drm-keysource rotate -c keysource.yaml --content-id=live-channel --first=100 --count=20

  # Request 5 crypto periods per license exchange and expose metrics
  drm-keysource rotate -c keysource.yaml --content-id=live-channel \
  --count=20 --crypto-period-count=5 --metrics-addr=:9090
`,
	Args: cobra.NoArgs,
	RunE: rotateCmdRun,
}

type rotateFlags struct {
	content           contentFlags
	out               outputFlags
	first             uint32
	count             uint32
	cryptoPeriodCount uint32
	metricsAddr       string
}

var rotateArgs = rotateFlags{count: 1}

func init() {
	rotateArgs.content.bind(rotateCmd.Flags())
	rotateArgs.out.bind(rotateCmd.Flags())
	rotateCmd.Flags().Uint32Var(&rotateArgs.first, "first", 0,
		"Index of the first crypto period.")
	rotateCmd.Flags().Uint32Var(&rotateArgs.count, "count", rotateArgs.count,
		"Number of crypto periods to fetch keys for.")
	rotateCmd.Flags().Uint32Var(&rotateArgs.cryptoPeriodCount, "crypto-period-count", 0,
		"Number of crypto periods requested per license exchange, overrides the configuration file.")
	rotateCmd.Flags().StringVar(&rotateArgs.metricsAddr, "metrics-addr", "",
		"Address to serve Prometheus metrics on while fetching, disabled when empty.")
	rootCmd.AddCommand(rotateCmd)
}

func rotateCmdRun(cmd *cobra.Command, args []string) error {
	if rotateArgs.count == 0 {
		return errors.New("--count must be greater than zero")
	}

	spec, err := loadConfig(rotateArgs.content.serverURL)
	if err != nil {
		return err
	}
	if spec.RawKeys == nil {
		if spec.KeyRotation == nil {
			spec.KeyRotation = &config.KeyRotationSpec{}
		}
		if cmd.Flags().Changed("crypto-period-count") {
			spec.KeyRotation.CryptoPeriodCount = rotateArgs.cryptoPeriodCount
			spec.KeyRotation.KeyPoolCapacity = 0
		}
		spec.KeyRotation.ApplyDefaults()
	}

	ks, err := newKeySource(spec)
	if err != nil {
		return err
	}
	defer func() { _ = ks.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), rootArgs.timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	var srv *http.Server
	if rotateArgs.metricsAddr != "" {
		registerMetrics()
		lis, err := net.Listen("tcp", rotateArgs.metricsAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", rotateArgs.metricsAddr, err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(metrics.Gatherer(), promhttp.HandlerOpts{}))
		srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			if err := srv.Serve(lis); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		})
		rootCmd.Printf("◎ serving metrics on: http://%s/metrics\n", lis.Addr())
	}

	var doc *export.Document
	g.Go(func() error {
		if srv != nil {
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		if err := rotateArgs.content.fetch(gctx, ks, cmd.Flags()); err != nil {
			return err
		}
		d, err := rotateKeys(gctx, ks, spec.Tracks, rotateArgs.first, rotateArgs.count)
		if err != nil {
			return err
		}
		d.ContentID = rotateArgs.content.contentID
		doc = d
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	return writeDocument(cmd, doc, rotateArgs.out)
}

// rotateKeys collects the keys of the tracks for count crypto periods
// starting at first.
func rotateKeys(ctx context.Context, ks drm.KeySource, tracks []string, first, count uint32) (*export.Document, error) {
	doc := &export.Document{}
	for index := first; index-first < count; index++ {
		for _, label := range tracks {
			key, err := ks.GetCryptoPeriodKey(ctx, index, label)
			if drm.IsNotFound(err) {
				logger.V(1).Info("no key returned for track", "track", label, "cryptoPeriod", index)
				continue
			}
			if err != nil {
				return nil, err
			}
			if err := doc.Add(label, key, &index); err != nil {
				return nil, err
			}
		}
		logger.V(1).Info("crypto period keys collected", "cryptoPeriod", index)
	}
	if len(doc.Keys) == 0 {
		return nil, errors.New("no keys returned for the configured tracks")
	}
	return doc, nil
}
