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

package cookies

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Mubelotix/mantalon"
)

// cookieKey identifies a stored cookie by its (name, domain, path) triple,
// so two cookies that share a name but differ in scope (e.g. "session"
// scoped to "/" and another scoped to "/api") coexist instead of clobbering
// each other.
type cookieKey struct {
	name, domain, path string
}

func keyOf(c *http.Cookie) cookieKey {
	return cookieKey{name: c.Name, domain: c.Domain, path: c.Path}
}

// Jar holds cookies by (name, domain, path), plus a side table of keys whose
// current value has been overridden (spec.md §4.7, "override").
type Jar struct {
	mu         sync.RWMutex
	cookies    map[cookieKey]*http.Cookie
	overridden map[cookieKey]*http.Cookie // nil means the key didn't exist before the override
	store      Store
}

// New returns an empty Jar backed by store.
func New(store Store) *Jar {
	return &Jar{
		cookies:    make(map[cookieKey]*http.Cookie),
		overridden: make(map[cookieKey]*http.Cookie),
		store:      store,
	}
}

// Attach sets the outgoing Cookie header on req from every stored cookie
// whose domain (if any) is a suffix of the request host and whose path (if
// any) prefixes the request path.
func (j *Jar) Attach(req *http.Request) error {
	host := req.URL.Hostname()
	if host == "" {
		return mantalon.ErrNoOrigin
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	var parts []string
	for _, c := range j.cookies {
		if c.Domain != "" && !strings.HasSuffix(host, c.Domain) {
			continue
		}
		if c.Path != "" && !strings.HasPrefix(req.URL.Path, c.Path) {
			continue
		}
		parts = append(parts, c.Name+"="+c.Value)
	}
	// Map iteration order is randomized; sort so that repeated Attach calls
	// against an unchanged jar emit byte-identical Cookie headers.
	sort.Strings(parts)
	if len(parts) > 0 {
		req.Header.Set("Cookie", strings.Join(parts, "; "))
	}
	return nil
}

// Capture stores every Set-Cookie on resp whose domain attribute (if any)
// is compatible with u's host, then persists the jar.
func (j *Jar) Capture(ctx context.Context, u *url.URL, resp *http.Response) error {
	host := u.Hostname()
	if host == "" {
		return mantalon.ErrNoOrigin
	}

	changed := false
	j.mu.Lock()
	for _, c := range resp.Cookies() {
		if c.Domain != "" && !strings.HasSuffix(host, c.Domain) {
			mantalon.Log().Warn("cookies: dropping cookie whose domain doesn't match origin",
				zap.String("cookie", c.Name), zap.String("domain", c.Domain), zap.String("host", host))
			continue
		}
		j.cookies[keyOf(c)] = c
		changed = true
	}
	j.mu.Unlock()

	if !changed {
		return nil
	}
	return j.Save(ctx)
}

// Override replaces the in-memory value of a cookie (or creates a bare one
// if it doesn't exist yet) without changing what Save persists for it: the
// persisted copy stays whatever it was before the override (spec.md §4.7).
func (j *Jar) Override(name, value string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	key, old, exists := j.findByName(name)
	if exists {
		copied := *old
		j.overridden[key] = &copied
		updated := *old
		updated.Value = value
		j.cookies[key] = &updated
		return
	}

	bare := cookieKey{name: name}
	j.overridden[bare] = nil
	j.cookies[bare] = &http.Cookie{Name: name, Value: value}
}

// findByName looks up any stored cookie with the given name, regardless of
// its domain/path scope, picking a deterministic candidate when more than
// one matches. The original jar is keyed on name alone for this lookup
// (spec.md §4.7 matches `cookies.rs`'s `CookieJar::get(&name)`); only
// storage itself needs the full (name, domain, path) triple.
func (j *Jar) findByName(name string) (cookieKey, *http.Cookie, bool) {
	var keys []cookieKey
	for k := range j.cookies {
		if k.name == name {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return cookieKey{}, nil, false
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].domain != keys[j].domain {
			return keys[i].domain < keys[j].domain
		}
		return keys[i].path < keys[j].path
	})
	return keys[0], j.cookies[keys[0]], true
}

// Save serializes the jar to its Store. Cookies with an active override are
// excluded; in their place, the pre-override cookie (if one existed) is
// written back unchanged.
func (j *Jar) Save(ctx context.Context) error {
	j.mu.RLock()
	var lines []string
	for key, c := range j.cookies {
		if _, overridden := j.overridden[key]; overridden {
			continue
		}
		lines = append(lines, c.String())
	}
	for _, orig := range j.overridden {
		if orig != nil {
			lines = append(lines, orig.String())
		}
	}
	j.mu.RUnlock()

	return j.store.Save(ctx, strings.Join(lines, "\n"))
}

// Load repopulates the jar from its Store, parsing each line as a
// Set-Cookie value.
func (j *Jar) Load(ctx context.Context) error {
	data, err := j.store.Load(ctx)
	if err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	for _, line := range strings.Split(data, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		resp := &http.Response{Header: http.Header{"Set-Cookie": {line}}}
		for _, c := range resp.Cookies() {
			j.cookies[keyOf(c)] = c
		}
	}
	return nil
}
