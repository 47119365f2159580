// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/controlplaneio-fluxcd/drm-keysource/internal/drm"
	"github.com/controlplaneio-fluxcd/drm-keysource/internal/export"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch the content keys of a title",
	Example: `  # Fetch the keys of a content id from a license server
  drm-keysource fetch --config=keysource.yaml --content-id=my-title --policy=default

  # Fetch the keys referenced by a 'pssh' box
  drm-keysource fetch -c keysource.yaml --pssh=0000003470737368...

  # Write the keys encrypted for a recipient
  drm-keysource fetch -c keysource.yaml --content-id=my-title \
  --encrypt-key-set=recipient-enc-public.jwks \
  --output=my-title.jwe
`,
	Args: cobra.NoArgs,
	RunE: fetchCmdRun,
}

type fetchFlags struct {
	content contentFlags
	out     outputFlags
}

var fetchArgs fetchFlags

func init() {
	fetchArgs.content.bind(fetchCmd.Flags())
	fetchArgs.out.bind(fetchCmd.Flags())
	rootCmd.AddCommand(fetchCmd)
}

func fetchCmdRun(cmd *cobra.Command, args []string) error {
	spec, err := loadConfig(fetchArgs.content.serverURL)
	if err != nil {
		return err
	}
	spec.KeyRotation = nil

	ks, err := newKeySource(spec)
	if err != nil {
		return err
	}
	defer func() { _ = ks.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), rootArgs.timeout)
	defer cancel()

	if err := fetchArgs.content.fetch(ctx, ks, cmd.Flags()); err != nil {
		return err
	}

	doc := &export.Document{ContentID: fetchArgs.content.contentID}
	for _, label := range spec.Tracks {
		key, err := ks.GetKey(label)
		if drm.IsNotFound(err) {
			logger.V(1).Info("no key returned for track", "track", label)
			continue
		}
		if err != nil {
			return err
		}
		if err := doc.Add(label, key, nil); err != nil {
			return err
		}
	}
	if len(doc.Keys) == 0 {
		return errors.New("no keys returned for the configured tracks")
	}

	return writeDocument(cmd, doc, fetchArgs.out)
}
