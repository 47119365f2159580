// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/controlplaneio-fluxcd/drm-keysource/internal/config"
	"github.com/controlplaneio-fluxcd/drm-keysource/internal/drm"
	"github.com/controlplaneio-fluxcd/drm-keysource/internal/export"
	"github.com/controlplaneio-fluxcd/drm-keysource/internal/keysource"
	"github.com/controlplaneio-fluxcd/drm-keysource/internal/metrics"
)

// keySource is implemented by the Widevine and the raw key sources.
type keySource interface {
	drm.KeySource
	Close() error
}

// contentFetcher is implemented by key sources requesting keys by content id.
type contentFetcher interface {
	FetchContentKeys(ctx context.Context, contentID []byte, policy string) error
}

var registerMetricsOnce sync.Once

func registerMetrics() {
	registerMetricsOnce.Do(metrics.MustRegisterMetrics)
}

// loadConfig reads the configuration file if one is set, otherwise it
// returns the defaults. A non-empty serverURL overrides the file.
func loadConfig(serverURL string) (*config.ConfigSpec, error) {
	var spec *config.ConfigSpec
	if rootArgs.configFile != "" {
		s, err := config.Load(rootArgs.configFile)
		if err != nil {
			return nil, err
		}
		spec = s
	} else {
		spec = &config.ConfigSpec{}
		spec.ApplyDefaults()
	}

	if serverURL != "" {
		if spec.RawKeys != nil {
			return nil, errors.New("--server-url cannot be used with a rawKeys configuration")
		}
		spec.ServerURL = serverURL
	}

	if spec.ServerURL == "" && spec.RawKeys == nil {
		return nil, errors.New("a license server URL is required, set --server-url or --config")
	}
	return spec, nil
}

// newKeySource returns the raw key source when the configuration holds
// raw keys and the Widevine key source otherwise.
func newKeySource(spec *config.ConfigSpec, extra ...keysource.Option) (keySource, error) {
	if spec.RawKeys != nil {
		raw, err := spec.NewRaw(logger)
		if err != nil {
			return nil, err
		}
		return raw, nil
	}

	wv, err := spec.NewWidevine(logger, extra...)
	if err != nil {
		return nil, err
	}
	return wv, nil
}

type contentFlags struct {
	serverURL string
	contentID string
	policy    string
	pssh      string
	keyID     string
	assetID   uint32
}

func (f *contentFlags) bind(fs *pflag.FlagSet) {
	fs.StringVar(&f.serverURL, "server-url", "",
		"License server URL, overrides the serverURL of the configuration file.")
	fs.StringVar(&f.contentID, "content-id", "",
		"Content id to request keys for.")
	fs.StringVar(&f.policy, "policy", "",
		"Policy name sent with the content id.")
	fs.StringVar(&f.pssh, "pssh", "",
		"Hex encoded 'pssh' boxes to request keys for.")
	fs.StringVar(&f.keyID, "key-id", "",
		"Hex encoded key id to request keys for.")
	fs.Uint32Var(&f.assetID, "asset-id", 0,
		"Widevine Classic asset id to request keys for.")
}

// fetch requests the keys identified by exactly one of the content flags.
// The raw key source needs none.
func (f *contentFlags) fetch(ctx context.Context, ks keySource, fs *pflag.FlagSet) error {
	assetSet := fs.Changed("asset-id")
	inputs := 0
	for _, set := range []bool{f.contentID != "", f.pssh != "", f.keyID != "", assetSet} {
		if set {
			inputs++
		}
	}
	if inputs > 1 {
		return errors.New("only one of --content-id, --pssh, --key-id and --asset-id can be set")
	}
	if f.policy != "" && f.contentID == "" {
		return errors.New("--policy requires --content-id")
	}

	switch {
	case f.contentID != "":
		cf, ok := ks.(contentFetcher)
		if !ok {
			return errors.New("--content-id requires a license server")
		}
		return cf.FetchContentKeys(ctx, []byte(f.contentID), f.policy)
	case f.pssh != "":
		data, err := hex.DecodeString(f.pssh)
		if err != nil {
			return fmt.Errorf("invalid --pssh: %w", err)
		}
		return ks.FetchKeys(ctx, drm.InitDataCENC, data)
	case f.keyID != "":
		data, err := hex.DecodeString(f.keyID)
		if err != nil {
			return fmt.Errorf("invalid --key-id: %w", err)
		}
		return ks.FetchKeys(ctx, drm.InitDataWebM, data)
	case assetSet:
		return ks.FetchKeys(ctx, drm.InitDataWidevineClassic, binary.BigEndian.AppendUint32(nil, f.assetID))
	}

	if _, ok := ks.(*keysource.Raw); ok {
		return nil
	}
	return errors.New("one of --content-id, --pssh, --key-id or --asset-id is required")
}

type outputFlags struct {
	output     string
	encryptFor string
	keyID      string
}

func (f *outputFlags) bind(fs *pflag.FlagSet) {
	fs.StringVarP(&f.output, "output", "o", "",
		"Path to the output file, defaults to stdout.")
	fs.StringVar(&f.encryptFor, "encrypt-key-set", "",
		"Path to a public JWKS, when set the keys are written as JWE.")
	fs.StringVar(&f.keyID, "encrypt-key-id", "",
		"Key ID of the public key used for encryption, defaults to the first one.")
}

// writeDocument writes the key document as JSON, or as JWE when a
// public key set is given.
func writeDocument(cmd *cobra.Command, doc *export.Document, f outputFlags) error {
	data, err := doc.ToJSON()
	if err != nil {
		return err
	}

	if f.encryptFor != "" {
		keySet, err := export.ReadKeySet(f.encryptFor)
		if err != nil {
			return err
		}
		jwe, err := export.Encrypt(data, keySet, f.keyID)
		if err != nil {
			return err
		}
		data = []byte(jwe)
	}

	if f.output == "" || f.output == "/dev/stdout" {
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), string(data)); err != nil {
			return fmt.Errorf("failed to write keys: %w", err)
		}
		return nil
	}

	if err := os.WriteFile(f.output, data, 0600); err != nil {
		return fmt.Errorf("failed to write keys: %w", err)
	}
	rootCmd.Printf("✔ keys written to: %s\n", f.output)
	return nil
}
