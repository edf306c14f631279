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

package store

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/s3fuse/s3fuse/internal/executor"
	"github.com/s3fuse/s3fuse/internal/fserrors"
	"github.com/s3fuse/s3fuse/internal/handletable"
	"github.com/s3fuse/s3fuse/internal/metadatacache"
)

var (
	_ metadatacache.Fetcher = (*Client)(nil)
	_ handletable.Putter    = (*Client)(nil)
)

const metaHeaderPrefix = "X-Amz-Meta-"

// Client drives HEAD/GET/PUT/DELETE transactions against a Hook. It
// implements metadatacache.Fetcher and handletable.Putter so the facade
// can hand a single object to both without further adaptation.
type Client struct {
	Hook           Hook
	TimeoutSeconds int
}

// NewClient returns a Client issuing requests through hook with the
// given per-attempt timeout.
func NewClient(hook Hook, timeoutSeconds int) *Client {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}
	return &Client{Hook: hook, TimeoutSeconds: timeoutSeconds}
}

// Head implements metadatacache.Fetcher.
func (c *Client) Head(ctx context.Context, e *executor.Executor, key string) (metadatacache.Descriptor, error) {
	e.SetHook(c.Hook)
	if err := e.Init(executor.HEAD); err != nil {
		return metadatacache.Descriptor{}, err
	}
	if err := e.SetURL("/"+key, ""); err != nil {
		return metadatacache.Descriptor{}, err
	}
	if err := e.Run(ctx, c.TimeoutSeconds); err != nil {
		return metadatacache.Descriptor{}, err
	}

	switch {
	case e.ResponseCode() == 404:
		return metadatacache.Descriptor{}, metadatacache.ErrNoEntry
	case e.ResponseCode() >= 300:
		return metadatacache.Descriptor{}, &fserrors.HTTPStatusError{Code: e.ResponseCode()}
	}

	return descriptorFromHeaders(key, e), nil
}

// Get implements handletable.Putter: it downloads the full object body
// into w, through the caller's worker-owned executor.
func (c *Client) Get(e *executor.Executor, path string, w io.Writer) (etag, contentType string, userMetadata map[string]string, err error) {
	e.SetHook(c.Hook)
	if err = e.Init(executor.GET); err != nil {
		return
	}
	if err = e.SetURL("/"+path, ""); err != nil {
		return
	}
	if err = e.Run(context.Background(), c.TimeoutSeconds); err != nil {
		return
	}
	if e.ResponseCode() >= 300 {
		err = &fserrors.HTTPStatusError{Code: e.ResponseCode()}
		return
	}

	if _, werr := w.Write(e.OutputBytes()); werr != nil {
		err = werr
		return
	}

	d := descriptorFromHeaders(path, e)
	return d.ETag, d.ContentType, d.UserMetadata, nil
}

// Put implements handletable.Putter: it uploads r's contents (exactly
// size bytes) as path's object body, through the caller's worker-owned
// executor.
func (c *Client) Put(e *executor.Executor, path string, r io.Reader, size int64, contentType string, userMetadata map[string]string) (etag string, err error) {
	buf, err := io.ReadAll(io.LimitReader(r, size))
	if err != nil {
		return "", err
	}

	e.SetHook(c.Hook)
	if err = e.Init(executor.PUT); err != nil {
		return "", err
	}
	if err = e.SetURL("/"+path, ""); err != nil {
		return "", err
	}
	if contentType != "" {
		e.SetHeader("Content-Type", contentType)
	}
	for k, v := range userMetadata {
		e.SetHeader(metaHeaderPrefix+k, v)
	}
	if err = e.SetInputBuffer(buf); err != nil {
		return "", err
	}
	if err = e.Run(context.Background(), c.TimeoutSeconds); err != nil {
		return "", err
	}
	if e.ResponseCode() >= 300 {
		return "", &fserrors.HTTPStatusError{Code: e.ResponseCode()}
	}

	etag, _ = e.ResponseHeaders().Get("ETag")
	return strings.Trim(etag, `"`), nil
}

// List issues one page of a prefix listing, delimited per the Hook's
// ListQuery, starting at marker (empty for the first page).
func (c *Client) List(ctx context.Context, e *executor.Executor, prefix, marker string) (Listing, error) {
	e.SetHook(c.Hook)
	if err := e.Init(executor.GET); err != nil {
		return Listing{}, err
	}
	if err := e.SetURL("/", c.Hook.ListQuery(prefix, marker)); err != nil {
		return Listing{}, err
	}
	if err := e.Run(ctx, c.TimeoutSeconds); err != nil {
		return Listing{}, err
	}
	if e.ResponseCode() >= 300 {
		return Listing{}, &fserrors.HTTPStatusError{Code: e.ResponseCode()}
	}
	return c.Hook.ParseListing(e.OutputBytes())
}

// Delete removes the object at path, through the caller's worker-owned
// executor.
func (c *Client) Delete(e *executor.Executor, path string) error {
	e.SetHook(c.Hook)
	if err := e.Init(executor.DELETE); err != nil {
		return err
	}
	if err := e.SetURL("/"+path, ""); err != nil {
		return err
	}
	if err := e.Run(context.Background(), c.TimeoutSeconds); err != nil {
		return err
	}
	if code := e.ResponseCode(); code >= 300 && code != 404 {
		return &fserrors.HTTPStatusError{Code: code}
	}
	return nil
}

func descriptorFromHeaders(key string, e *executor.Executor) metadatacache.Descriptor {
	d := metadatacache.Descriptor{
		Path:  strings.TrimSuffix(key, "/"),
		Kind:  metadatacache.KindFile,
		Mtime: e.LastModified(),
	}

	if cl, ok := e.ResponseHeaders().Get("Content-Length"); ok {
		if n, err := strconv.ParseUint(cl, 10, 64); err == nil {
			d.Size = n
		}
	}
	if etag, ok := e.ResponseHeaders().Get("ETag"); ok {
		d.ETag = strings.Trim(etag, `"`)
	}
	if ct, ok := e.ResponseHeaders().Get("Content-Type"); ok {
		d.ContentType = ct
	}

	meta := map[string]string{}
	for _, name := range e.ResponseHeaders().Names() {
		if !strings.HasPrefix(strings.ToLower(name), strings.ToLower(metaHeaderPrefix)) {
			continue
		}
		v, _ := e.ResponseHeaders().Get(name)
		meta[strings.TrimPrefix(strings.ToLower(name), strings.ToLower(metaHeaderPrefix))] = v
	}
	if len(meta) > 0 {
		d.UserMetadata = meta
	}

	return d
}
