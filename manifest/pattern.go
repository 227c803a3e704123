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
	"net/url"
	"regexp"
	"strings"
)

// urlPattern is a compiled URL-pattern-constructor string. It narrows a
// request URL by scheme, host and path independently; a nil component
// regexp means "matches anything" for that component. This plays the same
// role the original implementation gave `urlpattern::UrlPattern`, built
// here the way the teacher turns small glob-like user syntaxes into
// anchored regexps (see middleware/proxy/proxy.go's templateDelim and
// middleware/rewrite/condition.go's matchFunc).
type urlPattern struct {
	raw    string
	scheme *regexp.Regexp // nil matches any scheme
	host   *regexp.Regexp // nil matches any host
	path   *regexp.Regexp // nil matches any path
}

// universalPattern is what "*" compiles to: it matches every well-formed
// request URL (spec.md §8, "URL pattern \"*\" matches every well-formed URL").
func universalPattern() *urlPattern {
	return &urlPattern{raw: "*"}
}

// compilePattern parses raw (a manifest pattern-constructor string) against
// base (always "https://<domains[0]>/", per spec.md §4.5 step 4).
func compilePattern(raw string, base *url.URL) (*urlPattern, error) {
	if raw == "*" {
		return universalPattern(), nil
	}

	scheme, authority, path, hasScheme := splitPattern(raw)

	if !hasScheme {
		// A pattern with no "scheme://" prefix is relative: it matches
		// only the base's own scheme and host, narrowing just the path.
		scheme = base.Scheme
		authority = base.Host
		if !strings.HasPrefix(raw, "/") {
			path = joinPath(base.Path, raw)
		} else {
			path = raw
		}
	}

	p := &urlPattern{raw: raw}

	if scheme != "" && scheme != "*" {
		re, err := globToRegexp(scheme)
		if err != nil {
			return nil, err
		}
		p.scheme = re
	}
	if authority != "" && authority != "*" {
		re, err := globToRegexp(authority)
		if err != nil {
			return nil, err
		}
		p.host = re
	}
	if path != "" && path != "*" {
		re, err := globToRegexp(path)
		if err != nil {
			return nil, err
		}
		p.path = re
	}

	return p, nil
}

// splitPattern breaks "scheme://authority/path" into its three parts. If
// there's no "://", hasScheme is false and authority/path are unset.
func splitPattern(raw string) (scheme, authority, path string, hasScheme bool) {
	idx := strings.Index(raw, "://")
	if idx < 0 {
		return "", "", "", false
	}
	scheme = raw[:idx]
	rest := raw[idx+3:]
	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return scheme, rest, "", true
	}
	return scheme, rest[:slash], rest[slash:], true
}

func joinPath(base, rel string) string {
	if strings.HasSuffix(base, "/") {
		return base + rel
	}
	return base + "/" + rel
}

// globToRegexp escapes regexp metacharacters in s except for "*", which
// becomes ".*", then anchors the result.
func globToRegexp(s string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteByte('^')
	for _, r := range s {
		if r == '*' {
			sb.WriteString(".*")
			continue
		}
		sb.WriteString(regexp.QuoteMeta(string(r)))
	}
	sb.WriteByte('$')
	return regexp.Compile(sb.String())
}

// matches reports whether u satisfies every non-nil component of p.
func (p *urlPattern) matches(u *url.URL) bool {
	if p.scheme != nil && !p.scheme.MatchString(strings.ToLower(u.Scheme)) {
		return false
	}
	if p.host != nil && !p.host.MatchString(strings.ToLower(u.Host)) {
		return false
	}
	if p.path != nil && !p.path.MatchString(u.Path) {
		return false
	}
	return true
}
