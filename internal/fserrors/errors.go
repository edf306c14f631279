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

// Package fserrors converts the engine's internal error kinds into the
// POSIX errno the filesystem facade returns to FUSE. This is the single
// boundary-conversion point: closures submitted to the worker pool return
// internal errors, and the facade passes each one through ToErrno.
package fserrors

import (
	"errors"
	"net/http"
	"syscall"

	"github.com/jacobsa/fuse"
	"github.com/s3fuse/s3fuse/internal/executor"
	"github.com/s3fuse/s3fuse/internal/handletable"
	"github.com/s3fuse/s3fuse/internal/logx"
	"github.com/s3fuse/s3fuse/internal/metadatacache"
	"github.com/s3fuse/s3fuse/internal/workerpool"
)

// HTTPStatusError wraps a non-2xx HTTP response so the facade can map the
// status code to an errno.
type HTTPStatusError struct {
	Code int
}

func (e *HTTPStatusError) Error() string {
	return http.StatusText(e.Code)
}

// NotADirectoryError and IsADirectoryError signal a kind mismatch
// discovered while resolving a path against the metadata cache.
type NotADirectoryError struct{ Path string }
type IsADirectoryError struct{ Path string }

func (e *NotADirectoryError) Error() string { return e.Path + ": not a directory" }
func (e *IsADirectoryError) Error() string  { return e.Path + ": is a directory" }

// ToErrno converts an internal error into the POSIX errno the facade
// returns to FUSE. Any error not recognized below is logged and
// surfaced as EIO.
func ToErrno(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, metadatacache.ErrNoEntry):
		return fuse.Errno(syscall.ENOENT)
	case errors.Is(err, handletable.ErrBadHandle):
		return fuse.Errno(syscall.EBADF)
	case errors.Is(err, workerpool.ErrShuttingDown):
		return fuse.Errno(syscall.ESHUTDOWN)
	case errors.Is(err, executor.ErrTimedOut), errors.Is(err, executor.ErrAborted):
		return fuse.Errno(syscall.EIO)

	case asNotADirectory(err):
		return fuse.Errno(syscall.ENOTDIR)
	case asIsADirectory(err):
		return fuse.Errno(syscall.EISDIR)
	}

	var httpErr *HTTPStatusError
	if errors.As(err, &httpErr) {
		switch httpErr.Code {
		case http.StatusNotFound:
			return fuse.Errno(syscall.ENOENT)
		case http.StatusForbidden:
			return fuse.Errno(syscall.EACCES)
		default:
			return fuse.Errno(syscall.EIO)
		}
	}

	logx.Errorf("fserrors: unrecognized error surfaced as EIO: %v", err)
	return fuse.Errno(syscall.EIO)
}

func asNotADirectory(err error) bool {
	var e *NotADirectoryError
	return errors.As(err, &e)
}

func asIsADirectory(err error) bool {
	var e *IsADirectoryError
	return errors.As(err, &e)
}
