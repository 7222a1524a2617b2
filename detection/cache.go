// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
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

package detection

import (
	"time"

	"github.com/ZaparooProject/go-r30x/internal/syncutil"
)

// scanCache remembers the outcome of recent detection scans per transport,
// so repeated ConnectDevice calls do not re-open every serial port on the
// host. Entries age out against the caller-supplied TTL at lookup time.
type scanCache struct {
	results map[string]scanResult
	mu      syncutil.RWMutex
}

type scanResult struct {
	at      time.Time
	devices []DeviceInfo
}

var scans = &scanCache{results: make(map[string]scanResult)}

// lookup returns a copy of the cached devices for transport when the entry
// is younger than ttl.
func (c *scanCache) lookup(transport string, ttl time.Duration) ([]DeviceInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r, ok := c.results[transport]
	if !ok || time.Since(r.at) > ttl {
		return nil, false
	}
	return append([]DeviceInfo(nil), r.devices...), true
}

// store records a scan outcome. The slice is copied so later mutation by the
// caller cannot reach into the cache.
func (c *scanCache) store(transport string, devices []DeviceInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.results[transport] = scanResult{
		at:      time.Now(),
		devices: append([]DeviceInfo(nil), devices...),
	}
}

func (c *scanCache) drop(transport string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.results, transport)
}

func (c *scanCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = make(map[string]scanResult)
}
