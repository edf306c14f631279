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

// Package executor runs one HTTP transaction at a time with bounded
// retries, per-attempt timeouts, and pluggable signing/retry hooks. One
// Executor is owned by exactly one worker for its whole lifetime; it is
// not safe for concurrent use.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/s3fuse/s3fuse/internal/logx"
	"github.com/s3fuse/s3fuse/internal/stats"
)

// Method is an HTTP method the executor supports.
type Method string

const (
	GET    Method = "GET"
	HEAD   Method = "HEAD"
	PUT    Method = "PUT"
	POST   Method = "POST"
	DELETE Method = "DELETE"
)

var (
	// ErrAborted is returned by Run when all attempts exhausted
	// max_transfer_retries on a transport-class failure.
	ErrAborted = errors.New("executor: aborted after exhausting retries")

	// ErrTimedOut is returned by Run when an attempt's deadline expired.
	// The executor is unusable after this.
	ErrTimedOut = errors.New("executor: timed out")

	// ErrUnusable is returned by init (and therefore Run) once the
	// executor has been canceled or has timed out.
	ErrUnusable = errors.New("executor: unusable after cancellation or timeout")

	// ErrBodyNotAllowed is a programmer error: a body was set for a
	// method that forbids one.
	ErrBodyNotAllowed = errors.New("executor: input buffer not allowed for this method")
)

// Hook is the plug-in seam for store dialects: URL shaping, request
// signing, and retry policy. A concrete Hook is installed with SetHook
// before Run is called.
type Hook interface {
	// AdjustURL may rewrite the base URL, e.g. to add a bucket
	// subdomain or path prefix.
	AdjustURL(rawURL string) (string, error)

	// PreRun is invoked before each attempt so the hook can sign the
	// request with a fresh timestamp (Date, Authorization, etc.).
	PreRun(e *Executor, attempt int) error

	// ShouldRetry inspects the completed attempt's response code and
	// headers and decides whether to retry (e.g. refresh credentials on
	// 401, back off on 5xx).
	ShouldRetry(e *Executor, attempt int) bool
}

// Executor runs HTTP transactions. The zero value is not usable; use New.
type Executor struct {
	client  *http.Client
	hook    Hook
	retries int

	unusable  bool
	firstRun  bool

	// Per-transaction state, reset by init.
	method       Method
	url          string
	headers      *Headers
	inputBuffer  []byte
	responseCode int
	respHeaders  *Headers
	outputBytes  []byte
	lastModified time.Time
}

// New returns an Executor that will retry each transaction up to
// maxRetries times and uses client for the underlying HTTP calls. A nil
// client is replaced by a fresh *http.Client with no Transport set, so it
// uses http.DefaultTransport, whose connection pool is shared by every
// executor built that way.
func New(client *http.Client, maxRetries int) *Executor {
	if client == nil {
		client = &http.Client{}
	}
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Executor{client: client, retries: maxRetries, firstRun: true}
}

// SetHook installs the signing/retry hook used by Run.
func (e *Executor) SetHook(h Hook) {
	e.hook = h
}

// Init resets per-transaction state and selects the HTTP method for the
// next Run. Callers outside this package (store hooks, the metadata
// cache's Fetcher implementations) must call Init before SetURL/Run.
func (e *Executor) Init(method Method) error {
	return e.init(method)
}

// init resets per-transaction fields. Fails if the executor has been
// canceled or timed out.
func (e *Executor) init(method Method) error {
	if e.unusable {
		return ErrUnusable
	}
	e.method = method
	e.url = ""
	e.headers = NewHeaders()
	e.inputBuffer = nil
	e.responseCode = 0
	e.respHeaders = nil
	e.outputBytes = nil
	e.lastModified = time.Time{}
	return nil
}

// SetURL normalizes and applies the request URL, giving the hook a
// chance to rewrite the base URL. query is appended verbatim (already
// encoded) after a '?' if non-empty.
func (e *Executor) SetURL(base, query string) error {
	url := base
	if e.hook != nil {
		adjusted, err := e.hook.AdjustURL(base)
		if err != nil {
			return fmt.Errorf("executor: AdjustURL: %w", err)
		}
		url = adjusted
	}
	if query != "" {
		url = url + "?" + query
	}
	e.url = url
	return nil
}

// SetHeader adds a request header, preserving insertion order.
func (e *Executor) SetHeader(name, value string) {
	e.headers.Set(name, value)
}

// ReplaceHeader removes any existing header(s) named name before setting
// it, for callers (signing hooks) that recompute a header on every retry
// attempt and would otherwise accumulate duplicates.
func (e *Executor) ReplaceHeader(name, value string) {
	e.headers.Remove(name)
	e.headers.Set(name, value)
}

// Headers returns the request headers set so far.
func (e *Executor) Headers() *Headers {
	return e.headers
}

// SetInputBuffer sets the request body for PUT/POST. Forbidden for other
// methods when nonempty.
func (e *Executor) SetInputBuffer(body []byte) error {
	if len(body) > 0 && e.method != PUT && e.method != POST {
		return ErrBodyNotAllowed
	}
	e.inputBuffer = body
	return nil
}

// Method returns the method set by the most recent init call, so hooks
// can branch on it in PreRun/ShouldRetry.
func (e *Executor) Method() Method { return e.method }

// InputBuffer returns the request body set by SetInputBuffer, so a
// signing hook can hash it.
func (e *Executor) InputBuffer() []byte { return e.inputBuffer }

// URL returns the fully adjusted URL for the current transaction.
func (e *Executor) URL() string { return e.url }

// ResponseCode returns the HTTP status code of the completed transaction.
func (e *Executor) ResponseCode() int { return e.responseCode }

// ResponseHeaders returns the parsed response headers.
func (e *Executor) ResponseHeaders() *Headers { return e.respHeaders }

// OutputBytes returns the response body.
func (e *Executor) OutputBytes() []byte { return e.outputBytes }

// LastModified returns the parsed Last-Modified response header, if any.
func (e *Executor) LastModified() time.Time { return e.lastModified }

// Cancel marks the executor permanently unusable. Set once, terminal.
func (e *Executor) Cancel() {
	e.unusable = true
}

// Unusable reports whether the executor has been canceled or has timed
// out and must be discarded by its owning worker.
func (e *Executor) Unusable() bool {
	return e.unusable
}

// isTransportFailure classifies an error from http.Client.Do as a
// transport-class failure eligible for the executor's own retry loop
// (DNS, connect, partial transfer, SSL handshake, send/recv, and the
// context-deadline case handled separately as a timeout).
func isTransportFailure(err error) bool {
	if err == nil {
		return false
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe)
}

// Run executes the transaction, applying the retry policy: up to
// max_transfer_retries attempts, hook.PreRun before each, transport-class
// failures retried internally, HTTP-level completions deferred to
// hook.ShouldRetry. Each attempt is bounded by timeoutSeconds.
func (e *Executor) Run(ctx context.Context, timeoutSeconds int) error {
	if e.unusable {
		return ErrUnusable
	}
	if timeoutSeconds <= 0 {
		timeoutSeconds = 1
	}

	start := time.Now()
	var lastErr error
	retries := 0

	for attempt := 1; attempt <= e.retries; attempt++ {
		if e.hook != nil {
			if err := e.hook.PreRun(e, attempt); err != nil {
				return fmt.Errorf("executor: PreRun: %w", err)
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSeconds)*time.Second)
		err := e.runOnce(attemptCtx)
		cancel()

		if err != nil {
			if attemptCtx.Err() == context.DeadlineExceeded {
				e.unusable = true
				return ErrTimedOut
			}
			lastErr = err
			if isTransportFailure(err) && attempt < e.retries {
				retries++
				logx.Warnf("executor: transport failure on attempt %d: %v", attempt, err)
				continue
			}
			break
		}

		lastErr = nil
		if e.hook != nil && e.hook.ShouldRetry(e, attempt) && attempt < e.retries {
			retries++
			continue
		}
		break
	}

	elapsed := time.Since(start)
	skipElapsed := e.firstRun
	e.firstRun = false
	reportedElapsed := elapsed.Seconds()
	if skipElapsed {
		reportedElapsed = 0
	}
	stats.Instance().RecordTransaction(retries, reportedElapsed, uint64(len(e.inputBuffer)), uint64(len(e.outputBytes)))

	if lastErr != nil {
		return fmt.Errorf("%w: %v", ErrAborted, lastErr)
	}

	if e.responseCode >= 300 && e.responseCode != 404 {
		logx.Warnf("executor: %s %s returned %d", e.method, e.url, e.responseCode)
	}
	return nil
}

func (e *Executor) runOnce(ctx context.Context) error {
	var body io.Reader
	if len(e.inputBuffer) > 0 {
		body = bytes.NewReader(e.inputBuffer)
	}

	req, err := http.NewRequestWithContext(ctx, string(e.method), e.url, body)
	if err != nil {
		return err
	}
	for _, name := range e.headers.Names() {
		v, _ := e.headers.Get(name)
		req.Header.Add(name, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	e.responseCode = resp.StatusCode
	e.outputBytes = out
	e.respHeaders = headersFromHTTP(resp.Header)
	if lm, ok := e.respHeaders.Get("Last-Modified"); ok {
		if t, err := http.ParseTime(lm); err == nil {
			e.lastModified = t
		}
	}
	return nil
}

// headersFromHTTP copies net/http's already-parsed response headers into
// a Headers value. ParseResponseHeaderLine is not used here, and since
// http.Header is a map, the resulting order is not the order the server
// sent the headers in.
func headersFromHTTP(h http.Header) *Headers {
	out := NewHeaders()
	for name, values := range h {
		for _, v := range values {
			out.Set(name, v)
		}
	}
	return out
}
