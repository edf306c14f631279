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
	"bytes"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws/credentials"
	v4 "github.com/aws/aws-sdk-go/aws/signer/v4"
	"github.com/s3fuse/s3fuse/internal/executor"
)

// S3Hook implements Hook against an S3-compatible REST API: SigV4
// request signing, retry-on-401 (credential refresh) and retry-on-5xx,
// and the standard ListObjectsV2 XML listing schema.
type S3Hook struct {
	Endpoint string
	Bucket   string
	Region   string

	Credentials *credentials.Credentials
	Signer      *v4.Signer

	// PathStyle selects "endpoint/bucket/key" addressing instead of
	// "bucket.endpoint/key" virtual-hosted addressing.
	PathStyle bool
}

// NewS3Hook constructs an S3Hook from static access key credentials.
func NewS3Hook(endpoint, bucket, region, accessKeyID, secretAccessKey, sessionToken string, pathStyle bool) *S3Hook {
	creds := credentials.NewStaticCredentials(accessKeyID, secretAccessKey, sessionToken)
	return &S3Hook{
		Endpoint:    endpoint,
		Bucket:      bucket,
		Region:      region,
		Credentials: creds,
		Signer:      v4.NewSigner(creds),
		PathStyle:   pathStyle,
	}
}

// AdjustURL adds the bucket as a path prefix (path-style) or subdomain
// (virtual-hosted-style) ahead of the object key.
func (h *S3Hook) AdjustURL(rawURL string) (string, error) {
	u, err := url.Parse(h.Endpoint)
	if err != nil {
		return "", err
	}
	key := strings.TrimPrefix(rawURL, "/")

	if h.PathStyle {
		u.Path = "/" + h.Bucket
		if key != "" {
			u.Path += "/" + key
		}
		return u.String(), nil
	}

	u.Host = h.Bucket + "." + u.Host
	u.Path = "/" + key
	return u.String(), nil
}

// signedHeaderNames are the headers v4.Signer.Sign adds to the scratch
// request. PreRun copies back only these, by name, so a header the caller
// already set (Content-Type, X-Amz-Meta-*) is never duplicated.
var signedHeaderNames = []string{
	"Authorization",
	"X-Amz-Date",
	"X-Amz-Security-Token",
	"X-Amz-Content-Sha256",
}

// PreRun signs the request with SigV4, giving it a fresh X-Amz-Date on
// every attempt so the signature never goes stale across retries.
func (h *S3Hook) PreRun(e *executor.Executor, attempt int) error {
	req, err := http.NewRequest(string(e.Method()), e.URL(), nil)
	if err != nil {
		return err
	}
	for _, name := range e.Headers().Names() {
		v, _ := e.Headers().Get(name)
		req.Header.Add(name, v)
	}

	body := bytes.NewReader(e.InputBuffer())

	_, err = h.Signer.Sign(req, body, "s3", h.Region, time.Now())
	if err != nil {
		return err
	}

	// Use ReplaceHeader, not SetHeader: these headers are recomputed on
	// every retry attempt and Headers.Set only appends, so a plain copy
	// would duplicate them from the second attempt on, and would always
	// duplicate any of these names the caller happened to set already.
	for _, name := range signedHeaderNames {
		if v := req.Header.Get(name); v != "" {
			e.ReplaceHeader(name, v)
		}
	}
	return nil
}

// ShouldRetry refreshes credentials and retries on 401, and retries on
// any 5xx. The next attempt starts immediately; there is no backoff delay
// between attempts.
func (h *S3Hook) ShouldRetry(e *executor.Executor, attempt int) bool {
	code := e.ResponseCode()
	if code == http.StatusUnauthorized && h.Credentials != nil {
		h.Credentials.Expire()
	}
	return h.ShouldRetryForCode(code)
}

// ShouldRetryForCode is ShouldRetry's response-code decision, split out
// so it can be exercised without a live credentials object.
func (h *S3Hook) ShouldRetryForCode(code int) bool {
	return code == http.StatusUnauthorized || code >= 500
}

// ListQuery returns the standard ListObjectsV2 query string scoped to
// prefix, delimited on '/' so child prefixes surface as directories.
func (h *S3Hook) ListQuery(prefix, marker string) string {
	return BuildListQuery(prefix, marker, "/")
}

// ParseListing parses the standard S3 ListBucketResult XML document.
func (h *S3Hook) ParseListing(body []byte) (Listing, error) {
	return ParseListBucketResult(body)
}

var _ Hook = (*S3Hook)(nil)
