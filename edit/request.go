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

package edit

import (
	"net/http"

	"github.com/Mubelotix/mantalon/manifest"
)

// ApplyRequest mutates req in place per the manifest's rule for req.URL
// and returns the rule that ended up governing it (spec.md §4.6, steps
// 1-6). If the rule overrides the URI, the manifest is re-selected exactly
// once against the new URL — an override never chains into a second
// override.
func ApplyRequest(req *http.Request, m *manifest.Compiled) *manifest.Rule {
	rule := m.SelectRule(req.URL)

	if rule.OverrideURI != nil {
		req.URL = rule.OverrideURI
		req.Host = rule.OverrideURI.Host
		rule = m.SelectRule(req.URL)
	}

	if rule.HTTPSOnly && req.URL.Scheme != "https" {
		req.URL.Scheme = "https"
	}

	for name := range rule.RemoveRequestHeaders {
		req.Header.Del(name)
	}
	for name, value := range rule.InsertRequestHeaders {
		req.Header.Set(name, value)
	}
	for name, value := range rule.AppendRequestHeaders {
		req.Header.Add(name, value)
	}
	for from, to := range rule.RenameRequestHeaders {
		values, ok := req.Header[from]
		if !ok {
			continue
		}
		req.Header.Del(from)
		req.Header.Del(to)
		for _, v := range values {
			req.Header.Add(to, v)
		}
	}

	return rule
}
