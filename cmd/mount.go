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
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jacobsa/daemonize"
	"github.com/jacobsa/fuse"
	"github.com/kardianos/osext"
	"github.com/s3fuse/s3fuse/cfg"
	"github.com/s3fuse/s3fuse/clock"
	"github.com/s3fuse/s3fuse/fs"
	"github.com/s3fuse/s3fuse/internal/executor"
	"github.com/s3fuse/s3fuse/internal/handletable"
	"github.com/s3fuse/s3fuse/internal/logx"
	"github.com/s3fuse/s3fuse/internal/metadatacache"
	"github.com/s3fuse/s3fuse/internal/store"
	"github.com/s3fuse/s3fuse/internal/workerpool"
	"golang.org/x/sys/unix"
)

const inBackgroundEnvVar = "S3FUSE_IN_BACKGROUND_MODE"

// runMount either daemonizes and waits for the child to signal mount
// success, or (when already running in the foreground) builds the
// engine and mounts it in this process.
func runMount(conf *cfg.Config) error {
	if !conf.Foreground {
		return daemonizeAndWait(conf)
	}

	mfs, err := mountWithConfig(conf)
	if err != nil {
		if err2 := daemonize.SignalOutcome(err); err2 != nil {
			logx.Errorf("signaling mount failure to parent: %v", err2)
		}
		return err
	}
	if err2 := daemonize.SignalOutcome(nil); err2 != nil {
		logx.Errorf("signaling mount success to parent: %v", err2)
	}

	return mfs.Join(context.Background())
}

// daemonizeAndWait re-execs this binary with --foreground, passing along
// the environment a child needs to resolve relative paths and reach the
// endpoint through a proxy, then waits for it to report mount success.
func daemonizeAndWait(conf *cfg.Config) error {
	path, err := osext.Executable()
	if err != nil {
		return fmt.Errorf("osext.Executable: %w", err)
	}

	args := append([]string{"--foreground"}, os.Args[1:]...)

	env := []string{fmt.Sprintf("PATH=%s", os.Getenv("PATH"))}
	for _, name := range []string{"https_proxy", "http_proxy", "no_proxy"} {
		if v, ok := os.LookupEnv(name); ok {
			env = append(env, fmt.Sprintf("%s=%s", name, v))
		}
	}
	if wd, err := os.Getwd(); err == nil {
		env = append(env, fmt.Sprintf("S3FUSE_PARENT_PROCESS_DIR=%s", wd))
	}
	env = append(env, fmt.Sprintf("%s=true", inBackgroundEnvVar))

	if err := daemonize.Run(path, args, env, os.Stdout); err != nil {
		return fmt.Errorf("daemonize.Run: %w", err)
	}
	logx.Infof("File system has been successfully mounted.")
	return nil
}

// probeBucket issues a HEAD against the bucket root before mounting, so
// an unreachable endpoint or bad credentials fails fast with a clear
// error instead of surfacing as mysterious I/O errors once mounted.
func probeBucket(hook store.Hook, timeoutSeconds int) error {
	e := executor.New(nil, 1)
	e.SetHook(hook)
	if err := e.Init(executor.HEAD); err != nil {
		return err
	}
	if err := e.SetURL("/", ""); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSeconds)*time.Second)
	defer cancel()
	if err := e.Run(ctx, timeoutSeconds); err != nil {
		return fmt.Errorf("probing bucket: %w", err)
	}
	if code := e.ResponseCode(); code >= 300 && code != 404 {
		return fmt.Errorf("probing bucket: endpoint returned HTTP %d", code)
	}
	return nil
}

// chooseWorkerCeiling caps the combined foreground+background worker count
// at about 75% of the process's RLIMIT_NOFILE, so the pool can't be sized
// past the point where it starts failing to open scratch files. Falls back
// to a conservative default if the limit can't be queried.
func chooseWorkerCeiling() uint32 {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlimit); err != nil {
		const defaultLimit = 256
		logx.Warnf("querying RLIMIT_NOFILE: %v; using default worker ceiling of %d", err, defaultLimit)
		return defaultLimit
	}

	ceiling := rlimit.Cur/2 + rlimit.Cur/4
	const reasonableCeiling = 1 << 12
	if ceiling > reasonableCeiling {
		ceiling = reasonableCeiling
	}
	return uint32(ceiling)
}

// mountWithConfig assembles the engine (hook, executor pools, caches,
// facade) from conf and mounts it, returning once the kernel handshake
// completes.
func mountWithConfig(conf *cfg.Config) (*fuse.MountedFileSystem, error) {
	hook := store.NewS3Hook(conf.Endpoint, conf.Bucket, conf.Region,
		conf.AccessKeyID, conf.SecretAccessKey, conf.SessionToken, conf.PathStyle)

	if err := probeBucket(hook, conf.RequestTimeoutInS); err != nil {
		return nil, err
	}

	fgWorkers, bgWorkers := uint32(conf.FGWorkerCount), uint32(conf.BGWorkerCount)
	if ceiling := chooseWorkerCeiling(); fgWorkers+bgWorkers > ceiling {
		logx.Warnf("fg_worker_count+bg_worker_count (%d) exceeds the file-descriptor-based ceiling (%d); capping background workers", fgWorkers+bgWorkers, ceiling)
		if fgWorkers > ceiling {
			fgWorkers = ceiling
		}
		bgWorkers = ceiling - fgWorkers
	}

	newExecutor := func() *executor.Executor {
		return executor.New(nil, conf.MaxTransferRetries)
	}
	pool, err := workerpool.New(fgWorkers, bgWorkers, newExecutor)
	if err != nil {
		return nil, fmt.Errorf("workerpool.New: %w", err)
	}

	cache := metadatacache.New(time.Duration(conf.CacheTTLS)*time.Second, clock.RealClock{})
	handles := handletable.New(os.TempDir(), clock.RealClock{})

	uid := uint32(os.Getuid())
	gid := uint32(os.Getgid())

	server := fs.New(pool, cache, handles, hook, conf.RequestTimeoutInS, uid, gid)

	mountCfg := &fuse.MountConfig{
		FSName:     "s3fuse",
		Subtype:    "s3fuse",
		VolumeName: "s3fuse",
	}
	if conf.VerboseRequests {
		mountCfg.DebugLogger = log.New(os.Stderr, "fuse: ", 0)
	}

	mfs, err := fuse.Mount(conf.MountPoint, server, mountCfg)
	if err != nil {
		return nil, fmt.Errorf("fuse.Mount: %w", err)
	}
	return mfs, nil
}
