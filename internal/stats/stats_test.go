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

package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordTransaction_AccumulatesIntoSnapshot(t *testing.T) {
	g := Instance()
	before := g.Snapshot()

	g.RecordTransaction(2, 0.5, 100, 200)

	after := g.Snapshot()
	assert.Equal(t, before.RunCount+1, after.RunCount)
	assert.Equal(t, before.RetryCount+2, after.RetryCount)
	assert.Equal(t, before.BytesUploaded+100, after.BytesUploaded)
	assert.Equal(t, before.BytesDownloaded+200, after.BytesDownloaded)
}

func TestRecordTransaction_ZeroRetriesDoesNotPanic(t *testing.T) {
	g := Instance()

	assert.NotPanics(t, func() {
		g.RecordTransaction(0, 0, 0, 0)
	})
}

func TestInstance_ReturnsSameSingleton(t *testing.T) {
	assert.Same(t, Instance(), Instance())
}
