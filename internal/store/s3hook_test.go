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
	"net/http"
	"testing"

	"github.com/s3fuse/s3fuse/internal/executor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdjustURL_PathStyle(t *testing.T) {
	h := NewS3Hook("http://localhost:9000", "mybucket", "us-east-1", "ak", "sk", "", true)

	u, err := h.AdjustURL("/foo/bar")

	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/mybucket/foo/bar", u)
}

func TestAdjustURL_VirtualHostedStyle(t *testing.T) {
	h := NewS3Hook("http://s3.example.com", "mybucket", "us-east-1", "ak", "sk", "", false)

	u, err := h.AdjustURL("foo/bar")

	require.NoError(t, err)
	assert.Equal(t, "http://mybucket.s3.example.com/foo/bar", u)
}

func TestShouldRetry_OnFreshExecutorDoesNotRetry(t *testing.T) {
	h := NewS3Hook("http://localhost", "b", "us-east-1", "ak", "sk", "", true)
	e := executor.New(nil, 3)
	e.SetHook(h)

	// ResponseCode is zero until Run populates it.
	retry := h.ShouldRetry(e, 1)

	assert.False(t, retry)
}

func TestShouldRetry_On5xxRetries(t *testing.T) {
	h := &S3Hook{}
	retry := h.ShouldRetryForCode(http.StatusServiceUnavailable)
	assert.True(t, retry)
}

func TestShouldRetry_On404DoesNotRetry(t *testing.T) {
	h := &S3Hook{}
	retry := h.ShouldRetryForCode(http.StatusNotFound)
	assert.False(t, retry)
}

func TestParseListBucketResult_ParsesEntriesAndContinuationToken(t *testing.T) {
	body := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult>
  <IsTruncated>true</IsTruncated>
  <NextContinuationToken>tok123</NextContinuationToken>
  <Contents>
    <Key>dir/a.txt</Key>
    <Size>5</Size>
    <ETag>"abc"</ETag>
    <LastModified>2025-01-01T00:00:00.000Z</LastModified>
  </Contents>
  <CommonPrefixes>
    <Prefix>dir/sub/</Prefix>
  </CommonPrefixes>
</ListBucketResult>`)

	l, err := ParseListBucketResult(body)

	require.NoError(t, err)
	assert.True(t, l.Truncated)
	assert.Equal(t, "tok123", l.ContinuationToken)
	require.Len(t, l.Entries, 2)
	assert.Equal(t, "dir/a.txt", l.Entries[0].Key)
	assert.EqualValues(t, 5, l.Entries[0].Size)
	assert.False(t, l.Entries[0].IsPrefix)
	assert.Equal(t, "dir/sub/", l.Entries[1].Key)
	assert.True(t, l.Entries[1].IsPrefix)
}

func TestBuildListQuery_IncludesPrefixMarkerDelimiter(t *testing.T) {
	q := BuildListQuery("dir/", "marker1", "/")

	assert.Contains(t, q, "list-type=2")
	assert.Contains(t, q, "prefix=dir%2F")
	assert.Contains(t, q, "continuation-token=marker1")
	assert.Contains(t, q, "delimiter=%2F")
}
