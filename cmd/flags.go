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

package cmd

import "github.com/spf13/pflag"

// registerFlags declares the flags cfg.BindFlags looks up by name: the
// flag name matches the cfg option name exactly, so binding needs no
// translation table.
func registerFlags(flags *pflag.FlagSet) {
	flags.String("endpoint", "", "Base URL of the S3-compatible endpoint")
	flags.String("bucket", "", "Bucket name")
	flags.Int("max_transfer_retries", 0, "Maximum retries per HTTP transaction")
	flags.Int("request_timeout_in_s", 0, "Per-attempt request timeout, in seconds")
	flags.Int("fg_worker_count", 0, "Foreground worker pool size")
	flags.Int("bg_worker_count", 0, "Background worker pool size")
	flags.Int("cache_ttl_s", 0, "Metadata cache entry TTL, in seconds")
	flags.Bool("verbose_requests", false, "Log every HTTP transaction at debug level")
	flags.String("ssl_ca_file", "", "Path to an additional CA bundle")
	flags.String("access_key_id", "", "Static access key ID")
	flags.String("secret_access_key", "", "Static secret access key")
	flags.String("session_token", "", "Optional session token for temporary credentials")
	flags.String("region", "", "SigV4 signing region")
	flags.Bool("path_style", true, "Use path-style bucket addressing instead of virtual-hosted")
	flags.Bool("foreground", false, "Run in the foreground instead of daemonizing")
}
