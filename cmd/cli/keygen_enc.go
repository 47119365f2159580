// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"fmt"
	"hash/adler32"
	"path"

	"github.com/spf13/cobra"

	"github.com/controlplaneio-fluxcd/drm-keysource/internal/export"
)

var keygenEncCmd = &cobra.Command{
	Use:   "enc [RECIPIENT]",
	Short: "Generate ECDH-ES+A128KW JWKs for exporting keys as JWE",
	Example: `  # Generate key pair in the current directory
  drm-keysource keygen enc cdn-origin
`,
	Args: cobra.ExactArgs(1),
	RunE: keygenEncCmdRun,
}

type keygenEncFlags struct {
	outputDir string
}

var keygenEncArgs = keygenEncFlags{outputDir: "."}

func init() {
	keygenEncCmd.Flags().StringVarP(&keygenEncArgs.outputDir, "output-dir", "o", keygenEncArgs.outputDir,
		"path to output directory (defaults to current directory)")
	keygenCmd.AddCommand(keygenEncCmd)
}

func keygenEncCmdRun(cmd *cobra.Command, args []string) error {
	recipient := args[0]
	if recipient == "" {
		return fmt.Errorf("recipient is required")
	}

	if err := isDir(keygenEncArgs.outputDir); err != nil {
		return err
	}

	recipientID := fmt.Sprintf("%08x", adler32.Checksum([]byte(recipient)))
	privateKeySetPath := path.Join(keygenEncArgs.outputDir, fmt.Sprintf("%s-enc-private.jwks", recipientID))
	publicKeySetPath := path.Join(keygenEncArgs.outputDir, fmt.Sprintf("%s-enc-public.jwks", recipientID))

	publicKeySet, privateKeySet, err := export.NewEncryptionKeySetPair()
	if err != nil {
		return err
	}

	if err := export.WriteKeySet(privateKeySetPath, privateKeySet); err != nil {
		return fmt.Errorf("failed to write private key set: %w", err)
	}
	if err := export.WriteKeySet(publicKeySetPath, publicKeySet); err != nil {
		return fmt.Errorf("failed to write public key set: %w", err)
	}

	rootCmd.Printf("✔ private key set written to: %s\n", privateKeySetPath)
	rootCmd.Printf("✔ public key set written to: %s\n", publicKeySetPath)
	return nil
}
