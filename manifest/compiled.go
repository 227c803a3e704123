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

package manifest

import (
	"net/textproto"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/Mubelotix/mantalon"
)

// Rule is one compiled content-edit rule (spec.md §3, "Compiled Edit Rule").
type Rule struct {
	Matches []*urlPattern

	LockBrowsing    bool
	HTTPSOnly       bool
	RewriteLocation bool
	JSRedirect      bool

	JS          []string
	CSS         []string
	OverrideURI *url.URL
	Substitute  []Substitution

	AppendHeaders map[string]string
	InsertHeaders map[string]string
	RemoveHeaders map[string]bool
	RenameHeaders map[string]string

	AppendRequestHeaders map[string]string
	InsertRequestHeaders map[string]string
	RemoveRequestHeaders map[string]bool
	RenameRequestHeaders map[string]string
}

// Match reports whether u satisfies any of the rule's patterns.
func (r *Rule) Match(u *url.URL) bool {
	for _, p := range r.Matches {
		if p.matches(u) {
			return true
		}
	}
	return false
}

// NeedsBodyResponse reports whether applying this rule requires
// materializing the whole response body (spec.md §4.6).
func (r *Rule) NeedsBodyResponse() bool {
	return r.LockBrowsing || len(r.JS) > 0 || len(r.CSS) > 0 || len(r.Substitute) > 0 || r.JSRedirect
}

// Compiled is the process-wide, read-mostly compiled manifest (spec.md §3,
// "Manifest (compiled)").
type Compiled struct {
	Domains []string

	// Global defaults, inherited by any rule that doesn't override them.
	LockBrowsing    bool
	HTTPSOnly       bool
	RewriteLocation bool
	JSRedirect      bool

	Rules []*Rule
}

// Default is the pre-init manifest (spec.md §4.5): one domain "localhost",
// rewrite_location on, everything else off, no rules (the wildcard rule is
// added below so lookup is still total).
func Default() *Compiled {
	m := &Compiled{
		Domains:         []string{"localhost"},
		RewriteLocation: true,
	}
	m.Rules = []*Rule{wildcardRule(m)}
	return m
}

func wildcardRule(m *Compiled) *Rule {
	return &Rule{
		Matches:         []*urlPattern{universalPattern()},
		LockBrowsing:    m.LockBrowsing,
		HTTPSOnly:       m.HTTPSOnly,
		RewriteLocation: m.RewriteLocation,
		JSRedirect:      m.JSRedirect,
	}
}

// SelectRule returns the first rule whose pattern set matches u. The
// synthetic wildcard rule guarantees this is always found (spec.md §4.6,
// invariant P3).
func (c *Compiled) SelectRule(u *url.URL) *Rule {
	for _, rule := range c.Rules {
		if rule.Match(u) {
			return rule
		}
	}
	// Unreachable under a correctly compiled manifest: Compile always
	// appends a wildcard rule.
	return wildcardRule(c)
}

// Compile turns a wire Source into a Compiled manifest, per spec.md §4.5.
// Per-item failures (a bad pattern, a bad header name/value) are logged and
// the offending item dropped; they never fail the whole compile.
func Compile(src Source) (*Compiled, error) {
	if len(src.Domains) == 0 {
		return nil, mantalon.ErrMissingDomain
	}

	// Step 3: append a synthetic wildcard rule inheriting the global
	// defaults, so lookup is always total.
	src.ContentEdits = append(src.ContentEdits, ContentEdit{Matches: []string{"*"}})

	baseURL, err := url.Parse("https://" + src.Domains[0] + "/")
	if err != nil {
		return nil, mantalon.E(mantalon.KindConfig, "InvalidBaseUrl", err)
	}

	c := &Compiled{
		Domains:         append([]string(nil), src.Domains...),
		LockBrowsing:    boolOr(src.LockBrowsing, false),
		HTTPSOnly:       boolOr(src.HTTPSOnly, false),
		RewriteLocation: boolOr(src.RewriteLocation, true),
		JSRedirect:      boolOr(src.JSRedirect, false),
	}

	for _, edit := range src.ContentEdits {
		rule, err := compileRule(edit, c, baseURL)
		if err != nil {
			mantalon.Log().Warn("manifest: dropping invalid content edit", zap.Error(err))
			continue
		}
		c.Rules = append(c.Rules, rule)
	}

	return c, nil
}

func compileRule(edit ContentEdit, defaults *Compiled, baseURL *url.URL) (*Rule, error) {
	var patterns []*urlPattern
	for _, raw := range edit.Matches {
		p, err := compilePattern(raw, baseURL)
		if err != nil {
			mantalon.Log().Warn("manifest: dropping invalid pattern", zap.String("pattern", raw), zap.Error(err))
			continue
		}
		patterns = append(patterns, p)
	}

	r := &Rule{
		Matches:         patterns,
		LockBrowsing:    boolOr(edit.LockBrowsing, defaults.LockBrowsing),
		HTTPSOnly:       boolOr(edit.HTTPSOnly, defaults.HTTPSOnly),
		RewriteLocation: boolOr(edit.RewriteLocation, defaults.RewriteLocation),
		JSRedirect:      boolOr(edit.JSRedirect, defaults.JSRedirect),
		JS:              []string(edit.JS),
		CSS:             []string(edit.CSS),
		Substitute:      edit.Substitute,
	}

	if edit.OverrideURL != "" {
		u, err := url.Parse(edit.OverrideURL)
		if err != nil {
			return nil, mantalon.E(mantalon.KindConfig, "InvalidOverrideUrl", err)
		}
		r.OverrideURI = u
	}

	r.AppendHeaders = parseHeaders(edit.AppendHeaders)
	r.InsertHeaders = parseHeaders(edit.InsertHeaders)
	r.RemoveHeaders = parseHeaderList(edit.RemoveHeaders)
	r.RenameHeaders = parseHeaderRename(edit.RenameHeaders)
	r.AppendRequestHeaders = parseHeaders(edit.AppendRequestHeaders)
	r.InsertRequestHeaders = parseHeaders(edit.InsertRequestHeaders)
	r.RemoveRequestHeaders = parseHeaderList(edit.RemoveRequestHeaders)
	r.RenameRequestHeaders = parseHeaderRename(edit.RenameRequestHeaders)

	return r, nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func parseHeaders(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		name, err := canonicalHeaderName(k)
		if err != nil {
			mantalon.Log().Warn("manifest: invalid header name", zap.String("name", k), zap.Error(err))
			continue
		}
		if !validHeaderValue(v) {
			mantalon.Log().Warn("manifest: invalid header value", zap.String("name", k))
			continue
		}
		out[name] = v
	}
	return out
}

func parseHeaderList(in []string) map[string]bool {
	out := make(map[string]bool, len(in))
	for _, k := range in {
		name, err := canonicalHeaderName(k)
		if err != nil {
			mantalon.Log().Warn("manifest: invalid header name", zap.String("name", k), zap.Error(err))
			continue
		}
		out[name] = true
	}
	return out
}

func parseHeaderRename(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		from, err := canonicalHeaderName(k)
		if err != nil {
			mantalon.Log().Warn("manifest: invalid header name", zap.String("name", k), zap.Error(err))
			continue
		}
		to, err := canonicalHeaderName(v)
		if err != nil {
			mantalon.Log().Warn("manifest: invalid header name", zap.String("name", v), zap.Error(err))
			continue
		}
		out[from] = to
	}
	return out
}

func canonicalHeaderName(name string) (string, error) {
	if name == "" {
		return "", mantalon.ErrInvalidHeader
	}
	// Header names are RFC 7230 tokens: visible ASCII minus delimiters.
	for _, r := range name {
		if r <= ' ' || r > '~' || strings.ContainsRune(`"(),/:;<=>?@[\]{}`, r) {
			return "", mantalon.ErrInvalidHeader
		}
	}
	return textproto.CanonicalMIMEHeaderKey(name), nil
}

// validHeaderValue rejects control characters the way net/http's own
// header writer would refuse to serialize.
func validHeaderValue(v string) bool {
	for i := 0; i < len(v); i++ {
		b := v[i]
		if b < 0x20 && b != '\t' {
			return false
		}
		if b == 0x7f {
			return false
		}
	}
	return true
}
