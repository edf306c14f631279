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

package metadatacache

import "golang.org/x/sync/singleflight"

// singleflightGroup coalesces concurrent Get calls for the same cold
// path into one fetch: the first caller in registers the call, later
// callers block on its result rather than issuing their own HEAD.
type singleflightGroup struct {
	group singleflight.Group
}

func (g *singleflightGroup) Do(key string, fn func() (any, error)) (any, error, bool) {
	return g.group.Do(key, fn)
}
