// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"fmt"
	"hash/adler32"
	"path"

	"github.com/spf13/cobra"

	"github.com/controlplaneio-fluxcd/drm-keysource/internal/signer"
)

var keygenSigCmd = &cobra.Command{
	Use:   "sig [SIGNER]",
	Short: "Generate Ed25519 JWKs for signing license requests",
	Example: `  # Generate key pair in the current directory
  drm-keysource keygen sig my-packager
`,
	Args: cobra.ExactArgs(1),
	RunE: keygenSigCmdRun,
}

type keygenSigFlags struct {
	outputDir string
}

var keygenSigArgs = keygenSigFlags{outputDir: "."}

func init() {
	keygenSigCmd.Flags().StringVarP(&keygenSigArgs.outputDir, "output-dir", "o", keygenSigArgs.outputDir,
		"path to output directory (defaults to current directory)")
	keygenCmd.AddCommand(keygenSigCmd)
}

func keygenSigCmdRun(cmd *cobra.Command, args []string) error {
	signerName := args[0]
	if signerName == "" {
		return fmt.Errorf("signer name is required")
	}

	if err := isDir(keygenSigArgs.outputDir); err != nil {
		return err
	}

	signerID := fmt.Sprintf("%08x", adler32.Checksum([]byte(signerName)))
	privateKeySetPath := path.Join(keygenSigArgs.outputDir, fmt.Sprintf("%s-sig-private.jwks", signerID))
	publicKeySetPath := path.Join(keygenSigArgs.outputDir, fmt.Sprintf("%s-sig-public.jwks", signerID))

	publicKeySet, privateKeySet, err := signer.NewKeySetPair(signerName)
	if err != nil {
		return err
	}

	if err := privateKeySet.WriteFile(privateKeySetPath); err != nil {
		return fmt.Errorf("failed to write private key set: %w", err)
	}
	if err := publicKeySet.WriteFile(publicKeySetPath); err != nil {
		return fmt.Errorf("failed to write public key set: %w", err)
	}

	rootCmd.Printf("✔ private key set written to: %s\n", privateKeySetPath)
	rootCmd.Printf("✔ public key set written to: %s\n", publicKeySetPath)
	return nil
}
