// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/controlplaneio-fluxcd/drm-keysource/internal/logging"
)

var (
	VERSION = "0.0.0-dev.0"
)

var rootCmd = &cobra.Command{
	Use:               "drm-keysource",
	Version:           VERSION,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
	Short:             "Command line utility for fetching content encryption keys from a Widevine license service",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log, err := logging.NewLogger(logOptions)
		if err != nil {
			return err
		}
		logger = log
		return nil
	},
}

type rootFlags struct {
	timeout    time.Duration
	configFile string
}

var (
	rootArgs = rootFlags{
		timeout: 10 * time.Minute,
	}
	logOptions = logging.DefaultOptions()
	logger     = logr.Discard()
)

func init() {
	rootCmd.PersistentFlags().DurationVar(&rootArgs.timeout, "timeout", rootArgs.timeout,
		"The length of time to wait before giving up on the current operation.")
	rootCmd.PersistentFlags().StringVarP(&rootArgs.configFile, "config", "c", "",
		"Path to the key source configuration file.")
	logOptions.BindFlags(rootCmd.PersistentFlags())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		rootCmd.PrintErrf("✗ %v\n", err)
		os.Exit(1)
	}
}
