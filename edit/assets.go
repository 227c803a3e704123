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

// Package edit applies a manifest's compiled rule to a request or response
// (spec.md §4.6, "Edit Pipeline").
package edit

import (
	_ "embed"
	"encoding/json"
	"strings"
)

//go:embed assets/lock_browsing.js
var lockBrowsingScript string

//go:embed assets/js_redirect.html
var jsRedirectTemplate string

// renderLockBrowsing substitutes the proxiedDomains token with a JSON array
// literal of domains (spec.md §4.6, "lock_browsing").
func renderLockBrowsing(domains []string) string {
	encoded, err := json.Marshal(domains)
	if err != nil {
		encoded = []byte("[]")
	}
	return strings.Replace(lockBrowsingScript, "proxiedDomains", string(encoded), 1)
}

// renderJSRedirect substitutes the locationToReplace token with a JSON
// string literal of target (spec.md §4.6, "JS redirect").
func renderJSRedirect(target string) string {
	encoded, err := json.Marshal(target)
	if err != nil {
		encoded = []byte(`""`)
	}
	return strings.Replace(jsRedirectTemplate, "locationToReplace", string(encoded), 1)
}
