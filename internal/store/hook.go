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

// Package store supplies the store-dialect seam consumed by
// internal/executor: URL shaping, request signing, retry policy hints,
// and directory-listing parsing for an S3-compatible REST API.
package store

import (
	"encoding/xml"
	"fmt"
	"net/url"

	"github.com/s3fuse/s3fuse/internal/executor"
)

// ListingEntry is one key (object or common prefix) returned by a LIST
// call.
type ListingEntry struct {
	Key          string
	IsPrefix     bool
	Size         uint64
	ETag         string
	LastModified string
}

// Listing is one page of a (possibly paginated) LIST response.
type Listing struct {
	Entries           []ListingEntry
	ContinuationToken string
	Truncated         bool
}

// Hook is the plug-in seam for store dialects, matching
// executor.Hook plus listing support.
type Hook interface {
	executor.Hook

	// ListQuery returns the query string for a LIST call scoped to
	// prefix, resuming after marker if non-empty.
	ListQuery(prefix, marker string) string

	// ParseListing parses a raw LIST response body into a Listing.
	ParseListing(body []byte) (Listing, error)
}

// listBucketResult is the subset of the S3 ListBucketResult XML schema
// this engine needs.
type listBucketResult struct {
	XMLName               xml.Name `xml:"ListBucketResult"`
	IsTruncated           bool     `xml:"IsTruncated"`
	NextContinuationToken string   `xml:"NextContinuationToken"`
	Contents              []struct {
		Key          string `xml:"Key"`
		Size         uint64 `xml:"Size"`
		ETag         string `xml:"ETag"`
		LastModified string `xml:"LastModified"`
	} `xml:"Contents"`
	CommonPrefixes []struct {
		Prefix string `xml:"Prefix"`
	} `xml:"CommonPrefixes"`
}

// ParseListBucketResult parses the standard S3 ListBucketResult XML
// document. Shared by S3Hook.ParseListing and by tests of other hook
// implementations that reuse the same wire format.
func ParseListBucketResult(body []byte) (Listing, error) {
	var r listBucketResult
	if err := xml.Unmarshal(body, &r); err != nil {
		return Listing{}, fmt.Errorf("store: parsing listing: %w", err)
	}

	l := Listing{
		ContinuationToken: r.NextContinuationToken,
		Truncated:         r.IsTruncated,
	}
	for _, c := range r.Contents {
		l.Entries = append(l.Entries, ListingEntry{
			Key:          c.Key,
			Size:         c.Size,
			ETag:         c.ETag,
			LastModified: c.LastModified,
		})
	}
	for _, p := range r.CommonPrefixes {
		l.Entries = append(l.Entries, ListingEntry{Key: p.Prefix, IsPrefix: true})
	}
	return l, nil
}

// BuildListQuery builds the standard S3 ListObjectsV2 query string.
func BuildListQuery(prefix, marker, delimiter string) string {
	v := url.Values{}
	v.Set("list-type", "2")
	if prefix != "" {
		v.Set("prefix", prefix)
	}
	if marker != "" {
		v.Set("continuation-token", marker)
	}
	if delimiter != "" {
		v.Set("delimiter", delimiter)
	}
	return v.Encode()
}
