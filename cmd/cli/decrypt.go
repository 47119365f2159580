// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-jose/go-jose/v4"
	"github.com/spf13/cobra"

	"github.com/controlplaneio-fluxcd/drm-keysource/internal/export"
)

const encPrivateKeySetEnvVar = "DRM_KEYSOURCE_ENC_PRIVATE_JWKS"

var decryptCmd = &cobra.Command{
	Use:   "decrypt",
	Short: "Decrypt a key document exported as JWE",
	Example: `  # Decrypt a key document using the private key set
  drm-keysource decrypt \
  --key-set=/path/to/enc-private.jwks \
  --input=my-title.jwe

  # Decrypt from stdin
  export DRM_KEYSOURCE_ENC_PRIVATE_JWKS="$(cat /path/to/enc-private.jwks)"
  cat my-title.jwe | drm-keysource decrypt
`,
	Args: cobra.NoArgs,
	RunE: decryptCmdRun,
}

type decryptFlags struct {
	keySetPath string
	inputPath  string
	outputPath string
}

var decryptArgs decryptFlags

func init() {
	decryptCmd.Flags().StringVarP(&decryptArgs.keySetPath, "key-set", "k", "",
		"path to JWKS file containing the private key")
	decryptCmd.Flags().StringVarP(&decryptArgs.inputPath, "input", "i", "",
		"path to input JWE file, defaults to stdin")
	decryptCmd.Flags().StringVarP(&decryptArgs.outputPath, "output", "o", "",
		"path to output file, defaults to stdout")
	rootCmd.AddCommand(decryptCmd)
}

func decryptCmdRun(cmd *cobra.Command, args []string) error {
	jwksData, err := loadKeySet(decryptArgs.keySetPath, encPrivateKeySetEnvVar)
	if err != nil {
		return err
	}

	var privateKeySet jose.JSONWebKeySet
	if err := json.Unmarshal(jwksData, &privateKeySet); err != nil {
		return fmt.Errorf("failed to parse private key set: %w", err)
	}

	var jweData []byte
	if decryptArgs.inputPath == "" || decryptArgs.inputPath == "/dev/stdin" {
		jweData, err = io.ReadAll(cmd.InOrStdin())
	} else {
		jweData, err = os.ReadFile(decryptArgs.inputPath)
	}
	if err != nil {
		return fmt.Errorf("failed to read input JWE: %w", err)
	}

	data, err := export.Decrypt(bytes.TrimSpace(jweData), &privateKeySet)
	if err != nil {
		return fmt.Errorf("failed to decrypt data: %w", err)
	}

	doc, err := export.DocumentFromJSON(data)
	if err != nil {
		return err
	}
	return writeDocument(cmd, doc, outputFlags{output: decryptArgs.outputPath})
}

// loadKeySet reads the JWKS from file path or environment variable.
func loadKeySet(keySetPath, envVarName string) ([]byte, error) {
	if keySetPath != "" {
		data, err := os.ReadFile(keySetPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read JWKS file: %w", err)
		}
		return data, nil
	}
	if data := os.Getenv(envVarName); data != "" {
		return []byte(data), nil
	}
	return nil, errors.New("JWKS must be specified with --key-set or the " + envVarName + " environment variable")
}
