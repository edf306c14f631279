// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cmd is the command-line entry point: flag/config wiring,
// daemonizing, and driving the mount up and down.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/s3fuse/s3fuse/cfg"
	"github.com/s3fuse/s3fuse/internal/logx"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// MountFunc performs the actual mount once conf has been loaded and
// validated. Factored out of rootCmd's RunE so tests can substitute a
// fake without touching the kernel.
type MountFunc func(conf *cfg.Config) error

// NewRootCmd builds the "s3fuse mount_point" command, calling mount once
// flags and the config file have been merged and validated.
func NewRootCmd(mount MountFunc) (*cobra.Command, error) {
	var cfgFile string
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "s3fuse [flags] mount_point",
		Short: "Mount an S3-compatible bucket as a local file system",
		Long: `s3fuse is a FUSE adapter that lets you mount an S3-compatible
object store bucket and access it as a local POSIX file system.`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			mountPoint, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("canonicalizing mount point: %w", err)
			}

			conf, err := cfg.Load(cfgFile, v)
			if err != nil {
				return err
			}
			conf.MountPoint = mountPoint
			conf.Foreground, _ = c.Flags().GetBool("foreground")

			logx.Init(logx.Config{Severity: severityFor(conf.VerboseRequests)})

			return mount(conf)
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a key=value config file")
	registerFlags(cmd.PersistentFlags())
	if err := cfg.BindFlags(v, cmd.PersistentFlags()); err != nil {
		return nil, err
	}

	return cmd, nil
}

func severityFor(verbose bool) logx.Severity {
	if verbose {
		return logx.DEBUG
	}
	return logx.INFO
}

// Execute builds the production root command and runs it, exiting the
// process with a non-zero status on failure.
func Execute() {
	cmd, err := NewRootCmd(runMount)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
