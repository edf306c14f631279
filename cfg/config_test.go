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

package cfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProps(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "s3fuse.properties")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeProps(t, "endpoint = http://localhost:9000\nbucket = mybucket\n")

	c, err := Load(path, viper.New())

	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000", c.Endpoint)
	assert.Equal(t, "mybucket", c.Bucket)
	assert.Equal(t, 3, c.MaxTransferRetries)
	assert.Equal(t, 30, c.RequestTimeoutInS)
	assert.Equal(t, 8, c.FGWorkerCount)
	assert.True(t, c.PathStyle)
}

func TestLoad_OverridesDefaultsFromFile(t *testing.T) {
	path := writeProps(t, "endpoint = http://s3.example.com\nbucket = b\nmax_transfer_retries = 7\nverbose_requests = true\n")

	c, err := Load(path, viper.New())

	require.NoError(t, err)
	assert.Equal(t, 7, c.MaxTransferRetries)
	assert.True(t, c.VerboseRequests)
}

func TestLoad_MissingEndpointFails(t *testing.T) {
	path := writeProps(t, "bucket = b\n")

	_, err := Load(path, viper.New())

	assert.Error(t, err)
}

func TestValidate_RejectsZeroRetries(t *testing.T) {
	c := &Config{Endpoint: "e", Bucket: "b", MaxTransferRetries: 0, RequestTimeoutInS: 1, FGWorkerCount: 1}
	assert.Error(t, c.Validate())
}

func TestValidate_RejectsBothWorkerCountsZero(t *testing.T) {
	c := &Config{Endpoint: "e", Bucket: "b", MaxTransferRetries: 1, RequestTimeoutInS: 1, FGWorkerCount: 0, BGWorkerCount: 0}
	assert.Error(t, c.Validate())
}

func TestValidate_AcceptsWellFormedConfig(t *testing.T) {
	c := &Config{Endpoint: "e", Bucket: "b", MaxTransferRetries: 3, RequestTimeoutInS: 30, FGWorkerCount: 4, BGWorkerCount: 4}
	assert.NoError(t, c.Validate())
}
