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

// Package clock abstracts wall-clock time so cache-entry TTLs and file
// handle mtimes can be tested without sleeping. RealClock drives the
// running system; FakeClock and SimulatedClock stand in for it in tests.
package clock

import "time"

// Clock is the time source used for metadata-cache fetch timestamps
// (internal/metadatacache) and open-file-handle mtimes (internal/handletable).
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After notifies on the returned channel once the given duration has
	// elapsed.
	After(d time.Duration) <-chan time.Time
}

// RealClock implements Clock using the actual system clock.
type RealClock struct{}

var _ Clock = RealClock{}

// Now returns the current local time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// Notifies on the return channel after the specified time has passed.
func (RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
