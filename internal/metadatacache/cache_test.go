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

package metadatacache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/s3fuse/s3fuse/clock"
	"github.com/s3fuse/s3fuse/internal/executor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFetcher struct {
	calls int32
	delay chan struct{}
	// keys that should resolve successfully; others return ErrNoEntry.
	ok map[string]Descriptor
}

func (f *countingFetcher) Head(ctx context.Context, e *executor.Executor, key string) (Descriptor, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay != nil {
		<-f.delay
	}
	if d, ok := f.ok[key]; ok {
		return d, nil
	}
	return Descriptor{}, ErrNoEntry
}

func TestGet_ColdPathIssuesOneHead(t *testing.T) {
	c := New(time.Minute, clock.RealClock{})
	f := &countingFetcher{ok: map[string]Descriptor{"a": {Path: "a", ETag: "e1"}}}

	d, err := c.Get(context.Background(), "/a", HintIsFile, nil, f)

	require.NoError(t, err)
	assert.Equal(t, "e1", d.ETag)
	assert.EqualValues(t, 1, atomic.LoadInt32(&f.calls))
}

func TestGet_WarmPathHitsNoFetch(t *testing.T) {
	c := New(time.Minute, clock.RealClock{})
	f := &countingFetcher{ok: map[string]Descriptor{"a": {Path: "a", ETag: "e1"}}}

	_, err := c.Get(context.Background(), "a", HintIsFile, nil, f)
	require.NoError(t, err)
	_, err = c.Get(context.Background(), "a", HintIsFile, nil, f)
	require.NoError(t, err)

	assert.EqualValues(t, 1, atomic.LoadInt32(&f.calls))
}

func TestGet_ConcurrentColdGetsShareOneHead(t *testing.T) {
	c := New(time.Minute, clock.RealClock{})
	f := &countingFetcher{delay: make(chan struct{}), ok: map[string]Descriptor{"a": {Path: "a"}}}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Get(context.Background(), "a", HintIsFile, nil, f)
			assert.NoError(t, err)
		}()
	}

	close(f.delay)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&f.calls))
}

func TestGet_ExpiredEntryRefetches(t *testing.T) {
	sc := clock.NewSimulatedClock(time.Now())
	c := New(time.Second, sc)
	f := &countingFetcher{ok: map[string]Descriptor{"a": {Path: "a"}}}

	_, err := c.Get(context.Background(), "a", HintIsFile, nil, f)
	require.NoError(t, err)

	sc.AdvanceTime(2 * time.Second)

	_, err = c.Get(context.Background(), "a", HintIsFile, nil, f)
	require.NoError(t, err)

	assert.EqualValues(t, 2, atomic.LoadInt32(&f.calls))
}

func TestGet_DirectoryResolvesTrailingSlashFirst(t *testing.T) {
	c := New(time.Minute, clock.RealClock{})
	f := &countingFetcher{ok: map[string]Descriptor{"d/": {Path: "d/"}}}

	d, err := c.Get(context.Background(), "d", HintNone, nil, f)

	require.NoError(t, err)
	assert.Equal(t, KindDirectory, d.Kind)
}

func TestGet_FallsBackToFileWhenNoTrailingSlash(t *testing.T) {
	c := New(time.Minute, clock.RealClock{})
	f := &countingFetcher{ok: map[string]Descriptor{"f": {Path: "f"}}}

	d, err := c.Get(context.Background(), "f", HintNone, nil, f)

	require.NoError(t, err)
	assert.Equal(t, "f", d.Path)
}

func TestGet_NotFoundYieldsErrNoEntry(t *testing.T) {
	c := New(time.Minute, clock.RealClock{})
	f := &countingFetcher{}

	_, err := c.Get(context.Background(), "missing", HintNone, nil, f)

	assert.ErrorIs(t, err, ErrNoEntry)
}

func TestInvalidateThenGet_PerformsFreshHead(t *testing.T) {
	c := New(time.Minute, clock.RealClock{})
	f := &countingFetcher{ok: map[string]Descriptor{"a": {Path: "a", ETag: "e1"}}}

	_, err := c.Get(context.Background(), "a", HintIsFile, nil, f)
	require.NoError(t, err)

	c.Invalidate("a")
	f.ok["a"] = Descriptor{Path: "a", ETag: "e2"}

	d, err := c.Get(context.Background(), "a", HintIsFile, nil, f)

	require.NoError(t, err)
	assert.Equal(t, "e2", d.ETag)
	assert.EqualValues(t, 2, atomic.LoadInt32(&f.calls))
}

func TestInsert_OverridesWithoutFetch(t *testing.T) {
	c := New(time.Minute, clock.RealClock{})
	f := &countingFetcher{}

	c.Insert("a", Descriptor{Path: "a", ETag: "fresh"})
	d, err := c.Get(context.Background(), "a", HintIsFile, nil, f)

	require.NoError(t, err)
	assert.Equal(t, "fresh", d.ETag)
	assert.EqualValues(t, 0, atomic.LoadInt32(&f.calls))
}
