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

package fserrors

import (
	"syscall"
	"testing"

	"github.com/jacobsa/fuse"
	"github.com/s3fuse/s3fuse/internal/handletable"
	"github.com/s3fuse/s3fuse/internal/metadatacache"
	"github.com/s3fuse/s3fuse/internal/workerpool"
	"github.com/stretchr/testify/assert"
)

func TestToErrno_NilIsNil(t *testing.T) {
	assert.NoError(t, ToErrno(nil))
}

func TestToErrno_NoEntryMapsToENOENT(t *testing.T) {
	assert.Equal(t, fuse.Errno(syscall.ENOENT), ToErrno(metadatacache.ErrNoEntry))
}

func TestToErrno_BadHandleMapsToEBADF(t *testing.T) {
	assert.Equal(t, fuse.Errno(syscall.EBADF), ToErrno(handletable.ErrBadHandle))
}

func TestToErrno_ShuttingDownMapsToESHUTDOWN(t *testing.T) {
	assert.Equal(t, fuse.Errno(syscall.ESHUTDOWN), ToErrno(workerpool.ErrShuttingDown))
}

func TestToErrno_HTTPStatus(t *testing.T) {
	assert.Equal(t, fuse.Errno(syscall.ENOENT), ToErrno(&HTTPStatusError{Code: 404}))
	assert.Equal(t, fuse.Errno(syscall.EACCES), ToErrno(&HTTPStatusError{Code: 403}))
	assert.Equal(t, fuse.Errno(syscall.EIO), ToErrno(&HTTPStatusError{Code: 500}))
}

func TestToErrno_KindMismatch(t *testing.T) {
	assert.Equal(t, fuse.Errno(syscall.ENOTDIR), ToErrno(&NotADirectoryError{Path: "/a"}))
	assert.Equal(t, fuse.Errno(syscall.EISDIR), ToErrno(&IsADirectoryError{Path: "/a"}))
}

func TestToErrno_UnrecognizedSurfacesAsEIO(t *testing.T) {
	assert.Equal(t, fuse.Errno(syscall.EIO), ToErrno(assert.AnError))
}
