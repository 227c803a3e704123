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

// Package fetch implements the Fetch Facade (component C8): the external
// entry point that marshals a host-native request into the internal model,
// orchestrates the Edit Pipeline, Cookie Jar and Connection Pool, and
// materializes a host-native streaming response (spec.md §4.8).
package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Mubelotix/mantalon"
	"github.com/Mubelotix/mantalon/cookies"
	"github.com/Mubelotix/mantalon/edit"
	"github.com/Mubelotix/mantalon/manifest"
	"github.com/Mubelotix/mantalon/proxy"
)

// headerPrefix namespaces headers mantalon itself injects so that nothing
// upstream can spoof them (spec.md §4.8, "x-mantalon-* stripping").
const headerPrefix = "X-Mantalon-"

// Facade orchestrates one proxied request end to end.
type Facade struct {
	Manifest *manifest.Store
	Cookies  *cookies.Jar
	Pool     *proxy.Pool
	// SelfOrigin is the origin the browser sees mantalon serving under,
	// used to reconstruct same-origin Location headers.
	SelfOrigin *url.URL
}

// New returns a Facade wired to the given components.
func New(m *manifest.Store, c *cookies.Jar, p *proxy.Pool, selfOrigin *url.URL) *Facade {
	return &Facade{Manifest: m, Cookies: c, Pool: p, SelfOrigin: selfOrigin}
}

// Do runs req through the full pipeline and returns a streaming response
// (spec.md §4.1, "Data flow for one request").
func (f *Facade) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	stripUpstreamHeaders(req.Header)

	current := f.Manifest.Current()
	rule := edit.ApplyRequest(req, current)

	if err := f.Cookies.Attach(req); err != nil {
		mantalon.Log().Debug("fetch: no cookies attached", zap.Error(err))
	}

	resp, err := f.Pool.SendRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	stripUpstreamHeaders(resp.Header)

	edit.ApplyResponse(resp, rule, f.SelfOrigin, current.Domains)

	if err := f.Cookies.Capture(ctx, req.URL, resp); err != nil {
		mantalon.Log().Debug("fetch: no cookies captured", zap.Error(err))
	}
	renameSetCookieHeaders(resp.Header)

	if edit.SynthesizeJSRedirect(resp, rule) {
		return resp, nil
	}

	if rule.NeedsBodyResponse() && resp.StatusCode != http.StatusNoContent && resp.Body != nil {
		if err := materializeBody(resp, rule, current.Domains); err != nil {
			return nil, err
		}
	}

	return resp, nil
}

// materializeBody reads the whole response body, applies script/stylesheet
// injection and literal substitutions, then replaces resp.Body with the
// edited bytes (spec.md §4.6, body-materializing edits).
func materializeBody(resp *http.Response, rule *manifest.Rule, domains []string) error {
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return mantalon.E(mantalon.KindBody, "HostError", err)
	}

	edited := edit.ApplyBody(raw, rule, domains, resp.Header.Get("Content-Type"))

	resp.Body = io.NopCloser(strings.NewReader(string(edited)))
	resp.ContentLength = int64(len(edited))
	resp.Header.Set("Content-Length", strconv.Itoa(len(edited)))
	return nil
}

// stripUpstreamHeaders removes every x-mantalon-* header from h. Do applies
// it to the client's request and to the upstream server's response, so only
// mantalon's own pipeline can set them.
func stripUpstreamHeaders(h http.Header) {
	for name := range h {
		if strings.HasPrefix(name, headerPrefix) {
			h.Del(name)
		}
	}
}

// renameSetCookieHeaders moves Set-Cookie and Set-Cookie2 to
// x-mantalon-set-cookie*/x-mantalon-set-cookie2* so a browser fetch() call
// (which can't see either header directly) can still observe the raw value
// if script needs it; the jar has already applied the cookie itself
// (spec.md §4.8).
func renameSetCookieHeaders(h http.Header) {
	renameHeaderValues(h, "Set-Cookie", "x-mantalon-set-cookie")
	renameHeaderValues(h, "Set-Cookie2", "x-mantalon-set-cookie2")
}

func renameHeaderValues(h http.Header, from, toPrefix string) {
	values := h.Values(from)
	if len(values) == 0 {
		return
	}
	h.Del(from)
	for i, v := range values {
		name := toPrefix
		if i > 0 {
			name = toPrefix + "-" + strconv.Itoa(i)
		}
		h.Set(name, v)
	}
}
