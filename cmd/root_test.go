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

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/s3fuse/s3fuse/cfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "s3fuse.properties")
	require.NoError(t, os.WriteFile(path, []byte("endpoint = http://localhost:9000\nbucket = mybucket\n"), 0644))
	return path
}

func TestRootCmd_LoadsConfigAndCallsMount(t *testing.T) {
	cfgPath := writeTestConfig(t)
	mountPoint := t.TempDir()

	var got *cfg.Config
	cmd, err := NewRootCmd(func(c *cfg.Config) error {
		got = c
		return nil
	})
	require.NoError(t, err)

	cmd.SetArgs([]string{"--config-file", cfgPath, mountPoint})
	require.NoError(t, cmd.Execute())

	require.NotNil(t, got)
	assert.Equal(t, "http://localhost:9000", got.Endpoint)
	assert.Equal(t, "mybucket", got.Bucket)
	abs, err := filepath.Abs(mountPoint)
	require.NoError(t, err)
	assert.Equal(t, abs, got.MountPoint)
	assert.False(t, got.Foreground)
}

func TestRootCmd_ForegroundFlagPropagates(t *testing.T) {
	cfgPath := writeTestConfig(t)
	mountPoint := t.TempDir()

	var got *cfg.Config
	cmd, err := NewRootCmd(func(c *cfg.Config) error {
		got = c
		return nil
	})
	require.NoError(t, err)

	cmd.SetArgs([]string{"--config-file", cfgPath, "--foreground", mountPoint})
	require.NoError(t, cmd.Execute())

	require.NotNil(t, got)
	assert.True(t, got.Foreground)
}

func TestRootCmd_RequiresExactlyOneArg(t *testing.T) {
	cmd, err := NewRootCmd(func(*cfg.Config) error { return nil })
	require.NoError(t, err)

	cmd.SetArgs([]string{})
	assert.Error(t, cmd.Execute())
}

func TestRootCmd_PropagatesConfigLoadError(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bad.properties")
	require.NoError(t, os.WriteFile(cfgPath, []byte("bucket = onlybucket\n"), 0644))

	cmd, err := NewRootCmd(func(*cfg.Config) error {
		t.Fatal("mount should not be called when config loading fails")
		return nil
	})
	require.NoError(t, err)

	cmd.SetArgs([]string{"--config-file", cfgPath, dir})
	assert.Error(t, cmd.Execute())
}
