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
	"net/url"
	"strings"

	"github.com/Mubelotix/mantalon/manifest"
)

// ApplyResponse mutates resp in place per rule (spec.md §4.6, response-side
// steps). selfOrigin is the origin the browser sees mantalon serving under;
// domains is the manifest's proxied domain list, used to decide whether a
// Location header actually points at a proxied origin worth rewriting.
func ApplyResponse(resp *http.Response, rule *manifest.Rule, selfOrigin *url.URL, domains []string) {
	if rule.RewriteLocation {
		rewriteLocation(resp, selfOrigin, domains)
	}

	for name := range rule.RemoveHeaders {
		resp.Header.Del(name)
	}
	for name, value := range rule.InsertHeaders {
		resp.Header.Set(name, value)
	}
	for name, value := range rule.AppendHeaders {
		resp.Header.Add(name, value)
	}
	for from, to := range rule.RenameHeaders {
		values, ok := resp.Header[from]
		if !ok {
			continue
		}
		resp.Header.Del(from)
		resp.Header.Del(to)
		for _, v := range values {
			resp.Header.Add(to, v)
		}
	}
}

// rewriteLocation rewrites a Location header that points at a proxied
// domain so it stays same-origin, preserving the original target under
// x-mantalon-location (spec.md §4.6, "Location rewrite").
func rewriteLocation(resp *http.Response, selfOrigin *url.URL, domains []string) {
	raw := resp.Header.Get("Location")
	if raw == "" {
		return
	}
	loc, err := url.Parse(raw)
	if err != nil {
		return
	}
	target := loc
	if !loc.IsAbs() {
		target = selfOrigin.ResolveReference(loc)
	}
	if !isProxiedHost(target.Hostname(), domains) {
		return
	}

	rewritten := *selfOrigin
	rewritten.Path = target.Path
	rewritten.RawQuery = target.RawQuery
	rewritten.Fragment = target.Fragment

	resp.Header.Set("x-mantalon-location", target.String())
	resp.Header.Set("Location", rewritten.String())
}

func isProxiedHost(host string, domains []string) bool {
	host = strings.ToLower(host)
	for _, d := range domains {
		if strings.ToLower(d) == host {
			return true
		}
	}
	return false
}
