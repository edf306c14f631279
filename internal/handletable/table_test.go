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

package handletable

import (
	"bytes"
	"io"
	"sync"
	"testing"

	"github.com/s3fuse/s3fuse/internal/executor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memPutter struct {
	mu   sync.Mutex
	objs map[string][]byte
	fail bool
}

func newMemPutter() *memPutter { return &memPutter{objs: make(map[string][]byte)} }

func (p *memPutter) Get(e *executor.Executor, path string, w io.Writer) (string, string, map[string]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := w.Write(p.objs[path])
	return "etag-0", "application/octet-stream", nil, err
}

func (p *memPutter) Put(e *executor.Executor, path string, r io.Reader, size int64, contentType string, meta map[string]string) (string, error) {
	if p.fail {
		return "", assert.AnError
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	p.objs[path] = b
	p.mu.Unlock()
	return "etag-1", nil
}

func TestOpenWriteReleaseOpenRead_RoundTrips(t *testing.T) {
	tbl := New(t.TempDir(), nil)
	putter := newMemPutter()
	putter.objs["/a"] = []byte("")

	h, err := tbl.Open("/a", putter, nil)
	require.NoError(t, err)
	_, err = h.Write([]byte("hello"), 0)
	require.NoError(t, err)
	err = tbl.Release(h.ID(), putter, nil, nil)
	require.NoError(t, err)

	h2, err := tbl.Open("/a", putter, nil)
	require.NoError(t, err)
	buf := make([]byte, 5)
	n, err := h2.Read(buf, 0)
	require.True(t, err == nil || err == io.EOF)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf))
}

func TestRelease_IsIdempotent(t *testing.T) {
	tbl := New(t.TempDir(), nil)
	putter := newMemPutter()

	h, err := tbl.Open("/a", putter, nil)
	require.NoError(t, err)
	require.NoError(t, tbl.Release(h.ID(), putter, nil, nil))

	err = tbl.Release(h.ID(), putter, nil, nil)

	assert.ErrorIs(t, err, ErrBadHandle)
	assert.Equal(t, 0, tbl.Len())
}

func TestRelease_RemovesHandleAndNeverReissuesID(t *testing.T) {
	tbl := New(t.TempDir(), nil)
	putter := newMemPutter()

	h1, err := tbl.Open("/a", putter, nil)
	require.NoError(t, err)
	require.NoError(t, tbl.Release(h1.ID(), putter, nil, nil))

	h2, err := tbl.Open("/a", putter, nil)
	require.NoError(t, err)

	assert.NotEqual(t, h1.ID(), h2.ID())
	assert.Greater(t, h2.ID(), h1.ID())
}

type slowPutter struct {
	*memPutter
	putStarted chan struct{}
	release    chan struct{}
}

func (p *slowPutter) Put(e *executor.Executor, path string, r io.Reader, size int64, contentType string, meta map[string]string) (string, error) {
	close(p.putStarted)
	<-p.release
	return p.memPutter.Put(e, path, r, size, contentType, meta)
}

func TestWrite_BlocksDuringFlushUntilResolved(t *testing.T) {
	tbl := New(t.TempDir(), nil)
	putter := &slowPutter{memPutter: newMemPutter(), putStarted: make(chan struct{}), release: make(chan struct{})}

	h, err := tbl.Open("/a", putter, nil)
	require.NoError(t, err)
	_, err = h.Write([]byte("v1"), 0)
	require.NoError(t, err)

	flushDone := make(chan error, 1)
	go func() { flushDone <- h.Flush(putter, nil, nil) }()
	<-putter.putStarted

	writeDone := make(chan struct{})
	go func() {
		_, werr := h.Write([]byte("v2"), 0)
		assert.NoError(t, werr)
		close(writeDone)
	}()

	select {
	case <-writeDone:
		t.Fatal("write completed while flush was still in progress")
	default:
	}

	close(putter.release)
	require.NoError(t, <-flushDone)
	<-writeDone
}

func TestFlush_OnFailureKeepsDirtyClearsFlushing(t *testing.T) {
	tbl := New(t.TempDir(), nil)
	putter := newMemPutter()
	putter.fail = true

	h, err := tbl.Open("/a", putter, nil)
	require.NoError(t, err)
	_, err = h.Write([]byte("v1"), 0)
	require.NoError(t, err)

	err = h.Flush(putter, nil, nil)

	assert.Error(t, err)
	h.mu.Lock()
	dirty := h.status&Dirty != 0
	flushing := h.status&Flushing != 0
	h.mu.Unlock()
	assert.True(t, dirty)
	assert.False(t, flushing)
}

func TestZeroLengthPut_SucceedsAndGetReturnsZeroBytes(t *testing.T) {
	tbl := New(t.TempDir(), nil)
	putter := newMemPutter()

	h, err := tbl.Open("/a", putter, nil)
	require.NoError(t, err)
	// A zero-length write marks the handle dirty, so Release issues a PUT
	// of an empty body.
	_, err = h.Write(nil, 0)
	require.NoError(t, err)
	require.NoError(t, tbl.Release(h.ID(), putter, nil, nil))
	_, stored := putter.objs["/a"]
	require.True(t, stored)

	var buf bytes.Buffer
	_, _, _, err = putter.Get(nil, "/a", &buf)
	require.NoError(t, err)
	assert.Equal(t, 0, buf.Len())
}

func TestWritePastCurrentSize_ExtendsScratch(t *testing.T) {
	tbl := New(t.TempDir(), nil)
	putter := newMemPutter()
	putter.objs["/a"] = []byte("ab")

	h, err := tbl.Open("/a", putter, nil)
	require.NoError(t, err)
	_, err = h.Write([]byte("XYZ"), 5)
	require.NoError(t, err)

	require.NoError(t, tbl.Release(h.ID(), putter, nil, nil))

	assert.Equal(t, 8, len(putter.objs["/a"]))
}
