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

package executor

import "strings"

// Headers is an order-preserving, case-insensitive multimap of header
// names to values. net/http.Header is a map and does not preserve
// insertion order, which the response-header parsing rule requires.
type Headers struct {
	names  []string // original-case names, in insertion order
	values []string
}

// NewHeaders returns an empty Headers.
func NewHeaders() *Headers {
	return &Headers{}
}

// Set appends a header, preserving insertion order. It does not overwrite
// an existing value with the same name; callers that want replace
// semantics should use a fresh Headers.
func (h *Headers) Set(name, value string) {
	h.names = append(h.names, name)
	h.values = append(h.values, value)
}

// Remove deletes every header matching name, compared case-insensitively.
func (h *Headers) Remove(name string) {
	names := h.names[:0]
	values := h.values[:0]
	for i, n := range h.names {
		if strings.EqualFold(n, name) {
			continue
		}
		names = append(names, n)
		values = append(values, h.values[i])
	}
	h.names = names
	h.values = values
}

// Get returns the first value set under name, compared case-insensitively,
// and whether any such header was present.
func (h *Headers) Get(name string) (string, bool) {
	for i, n := range h.names {
		if strings.EqualFold(n, name) {
			return h.values[i], true
		}
	}
	return "", false
}

// Names returns the header names in insertion order.
func (h *Headers) Names() []string {
	return append([]string(nil), h.names...)
}

// Len returns the number of headers set.
func (h *Headers) Len() int {
	return len(h.names)
}

// ParseResponseHeaderLine parses one line of a raw header block per the
// executor's header-parsing rule: strip trailing CR/LF, locate the first
// ':', trim a single leading space from the value. Lines without a ':'
// are ignored (ok is false). The status line and blank lines fall into
// that category naturally.
func ParseResponseHeaderLine(line string) (name, value string, ok bool) {
	line = strings.TrimRight(line, "\r\n")
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return "", "", false
	}
	name = line[:idx]
	value = line[idx+1:]
	if strings.HasPrefix(value, " ") {
		value = value[1:]
	}
	return name, value, true
}
