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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/s3fuse/s3fuse/internal/executor"
	"github.com/s3fuse/s3fuse/internal/store"
	"github.com/stretchr/testify/assert"
)

// unsignedHook is a minimal executor.Hook/store.Hook that issues requests
// unmodified, enough to exercise probeBucket against an httptest server.
type unsignedHook struct {
	base string
}

func (h *unsignedHook) AdjustURL(rawURL string) (string, error) {
	return h.base + rawURL, nil
}
func (h *unsignedHook) PreRun(e *executor.Executor, attempt int) error { return nil }
func (h *unsignedHook) ShouldRetry(e *executor.Executor, attempt int) bool { return false }
func (h *unsignedHook) ListQuery(prefix, marker string) string {
	return store.BuildListQuery(prefix, marker, "/")
}
func (h *unsignedHook) ParseListing(body []byte) (store.Listing, error) {
	return store.ParseListBucketResult(body)
}

func TestProbeBucket_SucceedsOn200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := probeBucket(&unsignedHook{base: srv.URL}, 5)

	assert.NoError(t, err)
}

func TestProbeBucket_SucceedsOn404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	err := probeBucket(&unsignedHook{base: srv.URL}, 5)

	assert.NoError(t, err)
}

func TestProbeBucket_FailsOn403(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	err := probeBucket(&unsignedHook{base: srv.URL}, 5)

	assert.Error(t, err)
}

func TestProbeBucket_FailsOnUnreachableEndpoint(t *testing.T) {
	err := probeBucket(&unsignedHook{base: "http://127.0.0.1:1"}, 1)

	assert.Error(t, err)
}

func TestChooseWorkerCeiling_IsPositiveAndBounded(t *testing.T) {
	ceiling := chooseWorkerCeiling()

	assert.Greater(t, ceiling, uint32(0))
	assert.LessOrEqual(t, ceiling, uint32(1<<12))
}
