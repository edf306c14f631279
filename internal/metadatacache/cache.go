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

// Package metadatacache memoizes remote object state with TTL coherence
// and single-flight coalescing of concurrent fetches for the same path.
package metadatacache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/s3fuse/s3fuse/clock"
	"github.com/s3fuse/s3fuse/internal/executor"
)

// Hint optimizes path resolution for Get, since stores materialize
// directories either as a trailing-slash object or an implicit prefix.
type Hint int

const (
	HintNone Hint = iota
	HintIsDir
	HintIsFile
)

// Kind is the object kind recorded in a Descriptor.
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
	KindSymlink
)

// Descriptor is the in-memory reflection of a remote blob's metadata.
type Descriptor struct {
	Path           string
	Kind           Kind
	Mode           uint32
	UID, GID       uint32
	Mtime          time.Time
	Size           uint64
	ETag           string
	ContentType    string
	UserMetadata   map[string]string
	FetchTimestamp time.Time
}

// ErrNoEntry is returned by Get when the object does not exist remotely.
var ErrNoEntry = errors.New("metadatacache: no such object")

// Fetcher performs the remote HEAD/LIST lookups the cache needs to
// resolve a cold path. It is supplied by the facade so the cache stays
// ignorant of the store dialect.
type Fetcher interface {
	// Head returns the descriptor for exactly the given key (no
	// trailing-slash resolution), or ErrNoEntry if it does not exist.
	Head(ctx context.Context, e *executor.Executor, key string) (Descriptor, error)
}

type entry struct {
	descriptor Descriptor
	fetchedAt  time.Time
}

// Cache maps path to object descriptor with TTL coherence and
// single-flight coalescing of concurrent cold-path fetches.
type Cache struct {
	ttl   time.Duration
	clock clock.Clock
	group singleflightGroup

	mu      sync.RWMutex
	entries map[string]entry
}

// New constructs a Cache whose entries are valid for ttl.
func New(ttl time.Duration, clk clock.Clock) *Cache {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Cache{
		ttl:     ttl,
		clock:   clk,
		entries: make(map[string]entry),
	}
}

func canonicalize(path string) string {
	return strings.TrimPrefix(path, "/")
}

// Get returns a fresh-enough descriptor, issuing a HEAD through fetcher
// if the entry is absent or expired. Concurrent Get calls for the same
// uncached path share one HEAD.
func (c *Cache) Get(ctx context.Context, path string, hint Hint, e *executor.Executor, fetcher Fetcher) (Descriptor, error) {
	path = canonicalize(path)

	if d, ok := c.lookupFresh(path); ok {
		return d, nil
	}

	v, err, _ := c.group.Do(path, func() (any, error) {
		if d, ok := c.lookupFresh(path); ok {
			return d, nil
		}
		d, err := c.resolve(ctx, path, hint, e, fetcher)
		if err != nil {
			return Descriptor{}, err
		}
		c.Insert(path, d)
		return d, nil
	})
	if err != nil {
		return Descriptor{}, err
	}
	return v.(Descriptor), nil
}

// resolve implements directory resolution: if hint != is-file, try
// "path/" first; on 404 and hint != is-dir, fall back to "path".
func (c *Cache) resolve(ctx context.Context, path string, hint Hint, e *executor.Executor, fetcher Fetcher) (Descriptor, error) {
	tryDir := hint != HintIsFile
	tryFile := hint != HintIsDir

	if tryDir {
		d, err := fetcher.Head(ctx, e, path+"/")
		if err == nil {
			d.Kind = KindDirectory
			return d, nil
		}
		if !errors.Is(err, ErrNoEntry) {
			return Descriptor{}, err
		}
	}

	if tryFile {
		d, err := fetcher.Head(ctx, e, path)
		if err == nil {
			return d, nil
		}
		if !errors.Is(err, ErrNoEntry) {
			return Descriptor{}, err
		}
	}

	return Descriptor{}, ErrNoEntry
}

func (c *Cache) lookupFresh(path string) (Descriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ent, ok := c.entries[path]
	if !ok {
		return Descriptor{}, false
	}
	if c.clock.Now().Sub(ent.fetchedAt) > c.ttl {
		return Descriptor{}, false
	}
	return ent.descriptor, true
}

// Prefill issues a best-effort background fetch for path, discarding any
// error. Intended to be called from a background-pool work item.
func (c *Cache) Prefill(ctx context.Context, path string, hint Hint, e *executor.Executor, fetcher Fetcher) {
	path = canonicalize(path)
	if _, ok := c.lookupFresh(path); ok {
		return
	}
	d, err := c.resolve(ctx, path, hint, e, fetcher)
	if err != nil {
		return
	}
	c.Insert(path, d)
}

// Invalidate drops the entry for path, if any. Mutation operations must
// call this before returning success to FUSE.
func (c *Cache) Invalidate(path string) {
	path = canonicalize(path)
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, path)
}

// Insert overrides the cache entry for path, used after a PUT to publish
// the freshly written etag without a HEAD round-trip.
func (c *Cache) Insert(path string, d Descriptor) {
	path = canonicalize(path)
	now := c.clock.Now()
	d.FetchTimestamp = now

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[path] = entry{descriptor: d, fetchedAt: now}
}

// InsertChildPrefix records that path is a directory, inferred from a
// LIST operation yielding a child prefix, without requiring a HEAD.
func (c *Cache) InsertChildPrefix(path string) {
	path = canonicalize(path)
	if _, ok := c.lookupFresh(path); ok {
		return
	}
	c.Insert(path, Descriptor{Path: path, Kind: KindDirectory})
}
