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

// Package cfg loads and validates the engine's configuration: a
// key=value text file plus flag overrides, immutable for the lifetime
// of the process.
package cfg

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the full recognized option set, loaded once at startup.
type Config struct {
	Endpoint string `mapstructure:"endpoint"`
	Bucket   string `mapstructure:"bucket"`

	MaxTransferRetries int `mapstructure:"max_transfer_retries"`
	RequestTimeoutInS  int `mapstructure:"request_timeout_in_s"`

	FGWorkerCount int `mapstructure:"fg_worker_count"`
	BGWorkerCount int `mapstructure:"bg_worker_count"`
	CacheTTLS     int `mapstructure:"cache_ttl_s"`

	VerboseRequests bool   `mapstructure:"verbose_requests"`
	SSLCAFile       string `mapstructure:"ssl_ca_file"`

	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token"`
	Region          string `mapstructure:"region"`
	PathStyle       bool   `mapstructure:"path_style"`

	MountPoint string `mapstructure:"-"`
	Foreground bool   `mapstructure:"-"`
}

// setDefaults installs the engine's defaults onto v, matching spec.md
// §6's recognized option list.
func setDefaults(v *viper.Viper) {
	v.SetDefault("max_transfer_retries", 3)
	v.SetDefault("request_timeout_in_s", 30)
	v.SetDefault("fg_worker_count", 8)
	v.SetDefault("bg_worker_count", 8)
	v.SetDefault("cache_ttl_s", 60)
	v.SetDefault("verbose_requests", false)
	v.SetDefault("region", "us-east-1")
	v.SetDefault("path_style", true)
}

// BindFlags binds the flag set's recognized option names onto v, so a
// flag value overrides the config file when the flag was explicitly
// set.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	names := []string{
		"endpoint", "bucket",
		"max_transfer_retries", "request_timeout_in_s",
		"fg_worker_count", "bg_worker_count", "cache_ttl_s",
		"verbose_requests", "ssl_ca_file",
		"access_key_id", "secret_access_key", "session_token", "region", "path_style",
	}
	for _, name := range names {
		if flag := flags.Lookup(name); flag != nil {
			if err := v.BindPFlag(name, flag); err != nil {
				return fmt.Errorf("cfg: bind flag %q: %w", name, err)
			}
		}
	}
	return nil
}

// Load reads configPath (a key=value "properties"-format file, viper's
// term for it) if non-empty, applies defaults, lets flags bound via
// BindFlags override, and validates the result.
func Load(configPath string, v *viper.Viper) (*Config, error) {
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("properties")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("cfg: reading %s: %w", configPath, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("cfg: unmarshal: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate enforces the invariants spec.md §6 implies: required fields
// present, retry/timeout/worker counts within sane bounds.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return fmt.Errorf("cfg: endpoint is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return fmt.Errorf("cfg: bucket is required")
	}
	if c.MaxTransferRetries < 1 {
		return fmt.Errorf("cfg: max_transfer_retries must be >= 1, got %d", c.MaxTransferRetries)
	}
	if c.RequestTimeoutInS < 1 {
		return fmt.Errorf("cfg: request_timeout_in_s must be >= 1, got %d", c.RequestTimeoutInS)
	}
	if c.FGWorkerCount == 0 && c.BGWorkerCount == 0 {
		return fmt.Errorf("cfg: fg_worker_count and bg_worker_count cannot both be zero")
	}
	if c.CacheTTLS < 0 {
		return fmt.Errorf("cfg: cache_ttl_s must be >= 0, got %d", c.CacheTTLS)
	}
	return nil
}
