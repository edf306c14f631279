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

// Package handletable bridges POSIX file-handle semantics
// (open/read/write/flush/release) to whole-object PUT/GET against the
// store, staging dirty content in local scratch files.
package handletable

import (
	"errors"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/s3fuse/s3fuse/clock"
	"github.com/s3fuse/s3fuse/internal/executor"
)

// Status is a bitset over a handle's lifecycle flags.
type Status uint32

const Clean Status = 0

const (
	Dirty Status = 1 << iota
	Flushing
	InUse
)

var (
	// ErrBadHandle is returned for operations on an unknown or
	// already-released handle-id (POSIX EBADF).
	ErrBadHandle = errors.New("handletable: bad handle")
)

// Putter performs the whole-object GET/PUT the table needs, through the
// caller's worker-owned executor so retries and connection reuse follow
// the pool's configuration. Supplied by the facade so the table stays
// ignorant of the store dialect.
type Putter interface {
	// Get fetches path's full body into w.
	Get(e *executor.Executor, path string, w io.Writer) (etag, contentType string, userMetadata map[string]string, err error)
	// Put uploads the full contents of r as path, preserving contentType
	// and userMetadata, and returns the new etag.
	Put(e *executor.Executor, path string, r io.Reader, size int64, contentType string, userMetadata map[string]string) (etag string, err error)
}

// Handle is the state of one open file.
type Handle struct {
	id           uint64
	traceID      string
	path         string
	etagOnOpen   string
	contentType  string
	userMetadata map[string]string

	mu     sync.Mutex
	cond   *sync.Cond
	scratch *os.File
	status  Status
	mtime   clock.Clock
}

// ID returns the handle's nonzero, process-lifetime-unique identifier.
func (h *Handle) ID() uint64 { return h.id }

// Path returns the path the handle was opened against.
func (h *Handle) Path() string { return h.path }

// TraceID is a per-open correlation ID, distinct from the numeric handle
// ID, for tying together log lines across a handle's flushes.
func (h *Handle) TraceID() string { return h.traceID }

// Table maps handle-id to {scratch, status}. Allocation is guarded by one
// mutex; each handle's state transitions are guarded by its own mutex
// plus a condition variable that blocks writers while FLUSHING.
type Table struct {
	tmpDir string
	clock  clock.Clock

	allocMu sync.Mutex
	nextID  uint64
	handles map[uint64]*Handle
}

// New constructs a Table whose scratch files are created under tmpDir.
func New(tmpDir string, clk clock.Clock) *Table {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Table{tmpDir: tmpDir, clock: clk, handles: make(map[uint64]*Handle)}
}

// Open fetches the object, creates an unlinked scratch file, GETs the
// full body into it, and marks the handle IN_USE.
func (t *Table) Open(path string, putter Putter, e *executor.Executor) (*Handle, error) {
	f, err := os.CreateTemp(t.tmpDir, "s3fuse-scratch-")
	if err != nil {
		return nil, err
	}
	// Unlink immediately: the scratch is reclaimed on last descriptor
	// close, with no persisted-state footprint.
	_ = os.Remove(f.Name())

	etag, contentType, meta, err := putter.Get(e, path, f)
	if err != nil {
		f.Close()
		return nil, err
	}

	h := &Handle{
		traceID:      uuid.New().String(),
		path:         path,
		etagOnOpen:   etag,
		contentType:  contentType,
		userMetadata: meta,
		scratch:      f,
		status:       InUse,
		mtime:        t.clock,
	}
	h.cond = sync.NewCond(&h.mu)

	t.allocMu.Lock()
	t.nextID++
	h.id = t.nextID
	t.handles[h.id] = h
	t.allocMu.Unlock()

	return h, nil
}

// Lookup returns the handle for id, or ErrBadHandle.
func (t *Table) Lookup(id uint64) (*Handle, error) {
	t.allocMu.Lock()
	defer t.allocMu.Unlock()

	h, ok := t.handles[id]
	if !ok {
		return nil, ErrBadHandle
	}
	return h, nil
}

// Read reads len(buf) bytes from the handle's scratch at offset.
func (h *Handle) Read(buf []byte, offset int64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.scratch.ReadAt(buf, offset)
}

// Write writes buf to the handle's scratch at offset and sets DIRTY. A
// write arriving while FLUSHING blocks until the flush resolves, so a PUT
// body is always a coherent snapshot.
func (h *Handle) Write(buf []byte, offset int64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for h.status&Flushing != 0 {
		h.cond.Wait()
	}

	n, err := h.scratch.WriteAt(buf, offset)
	if err == nil {
		h.status |= Dirty
	}
	return n, err
}

// Flush PUTs the scratch contents if DIRTY and not already FLUSHING,
// clearing DIRTY on success and updating the caller-supplied cache
// callback with the new etag; on failure DIRTY is kept and FLUSHING is
// cleared so a later flush can retry.
func (h *Handle) Flush(putter Putter, e *executor.Executor, onFlushed func(etag string)) error {
	h.mu.Lock()
	if h.status&Dirty == 0 || h.status&Flushing != 0 {
		h.mu.Unlock()
		return nil
	}
	h.status |= Flushing
	size, err := h.scratch.Seek(0, io.SeekEnd)
	if err != nil {
		h.status &^= Flushing
		h.mu.Unlock()
		h.cond.Broadcast()
		return err
	}
	h.mu.Unlock()

	if _, err := h.scratch.Seek(0, io.SeekStart); err != nil {
		h.clearFlushing()
		return err
	}

	etag, err := putter.Put(e, h.path, io.NewSectionReader(h.scratch, 0, size), size, h.contentType, h.userMetadata)

	h.mu.Lock()
	h.status &^= Flushing
	if err != nil {
		h.mu.Unlock()
		h.cond.Broadcast()
		return err
	}
	h.status &^= Dirty
	h.etagOnOpen = etag
	h.mu.Unlock()
	h.cond.Broadcast()

	if onFlushed != nil {
		onFlushed(etag)
	}
	return nil
}

func (h *Handle) clearFlushing() {
	h.mu.Lock()
	h.status &^= Flushing
	h.mu.Unlock()
	h.cond.Broadcast()
}

// Release removes the handle from the table, then flushes it and closes
// the scratch file; the flush error, if any, is returned. Idempotent: releasing
// an already-released handle returns ErrBadHandle and leaves the table
// unchanged.
func (t *Table) Release(id uint64, putter Putter, e *executor.Executor, onFlushed func(etag string)) error {
	t.allocMu.Lock()
	h, ok := t.handles[id]
	if !ok {
		t.allocMu.Unlock()
		return ErrBadHandle
	}
	delete(t.handles, id)
	t.allocMu.Unlock()

	flushErr := h.Flush(putter, e, onFlushed)

	h.mu.Lock()
	h.scratch.Close()
	h.mu.Unlock()

	return flushErr
}

// Len reports the number of open handles, for tests and diagnostics.
func (t *Table) Len() int {
	t.allocMu.Lock()
	defer t.allocMu.Unlock()
	return len(t.handles)
}
