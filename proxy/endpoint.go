// Copyright 2024 The Mantalon Authors
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

package proxy

import (
	"strings"
	"sync"

	"github.com/Mubelotix/mantalon"
)

// Endpoint is a one-shot cell holding the relay's base WebSocket URL. It is
// set exactly once during process init (spec.md §4.4.1); reading it before
// that fails with ErrEndpointNotSet.
type Endpoint struct {
	mu  sync.RWMutex
	url string
	set bool
}

// Set stores url. Calling it a second time is a no-op: the endpoint is
// fixed for the process lifetime once init has run.
func (e *Endpoint) Set(url string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.set {
		return
	}
	e.url, e.set = url, true
}

// Get returns the relay URL for destAddr, or ErrEndpointNotSet if Set has
// never been called.
func (e *Endpoint) Get(destAddr string) (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.set {
		return "", mantalon.ErrEndpointNotSet
	}
	base := strings.TrimSuffix(e.url, "/")
	return base + "/" + strings.TrimPrefix(destAddr, "/"), nil
}
