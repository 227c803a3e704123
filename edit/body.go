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
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Mubelotix/mantalon"
	"github.com/Mubelotix/mantalon/manifest"
)

const (
	closeHTMLTag = "</html>"
	closeHeadTag = "</head>"
)

// ApplyBody materializes the content edits that require the whole response
// body in memory: script/stylesheet injection, the lock_browsing shim, and
// literal substitutions (spec.md §4.6, body-materializing edits). Callers
// should only invoke this when rule.NeedsBodyResponse() is true.
func ApplyBody(body []byte, rule *manifest.Rule, domains []string, contentType string) []byte {
	body = bytes.TrimRight(body, "\n\r")

	if htmlEligible(contentType) {
		body = injectScripts(body, rule, domains)
		body = injectStylesheet(body, rule)
	}

	for _, sub := range rule.Substitute {
		body = applySubstitution(body, sub)
	}

	return body
}

// htmlEligible reports whether contentType permits script/stylesheet
// injection and the lock_browsing shim (spec.md §4.6: "activate only for
// responses whose content-type is absent or begins with text/html").
func htmlEligible(contentType string) bool {
	return contentType == "" || strings.HasPrefix(contentType, "text/html")
}

func injectScripts(body []byte, rule *manifest.Rule, domains []string) []byte {
	if len(rule.JS) == 0 && !rule.LockBrowsing {
		return body
	}
	if !bytes.HasSuffix(body, []byte(closeHTMLTag)) {
		mantalon.Log().Debug("edit: body has no trailing </html>, skipping script injection")
		return body
	}

	var inject bytes.Buffer
	for _, src := range rule.JS {
		inject.WriteString(`<script src="`)
		inject.WriteString(src)
		inject.WriteString(`"></script>`)
	}
	if rule.LockBrowsing {
		inject.WriteString("<script>")
		inject.WriteString(renderLockBrowsing(domains))
		inject.WriteString("</script>")
	}

	idx := len(body) - len(closeHTMLTag)
	return spliceAt(body, idx, inject.Bytes())
}

func injectStylesheet(body []byte, rule *manifest.Rule) []byte {
	if len(rule.CSS) == 0 {
		return body
	}
	if bytes.Count(body, []byte(closeHeadTag)) != 1 {
		mantalon.Log().Debug("edit: body has no unique </head>, skipping stylesheet injection")
		return body
	}

	var inject bytes.Buffer
	for _, href := range rule.CSS {
		inject.WriteString(`<link rel="stylesheet" href="`)
		inject.WriteString(href)
		inject.WriteString(`">`)
	}

	idx := bytes.Index(body, []byte(closeHeadTag))
	return spliceAt(body, idx, inject.Bytes())
}

func spliceAt(body []byte, idx int, insertion []byte) []byte {
	out := make([]byte, 0, len(body)+len(insertion))
	out = append(out, body[:idx]...)
	out = append(out, insertion...)
	out = append(out, body[idx:]...)
	return out
}

// applySubstitution replaces up to sub.MaxReplacements non-overlapping
// occurrences of sub.Pattern, scanning resuming after the end of each
// inserted replacement so the replacement text is never rescanned
// (spec.md §4.6, "substitute").
func applySubstitution(body []byte, sub manifest.Substitution) []byte {
	pattern := []byte(sub.Pattern)
	if len(pattern) == 0 {
		return body
	}

	var replacement []byte
	switch {
	case sub.Replacement != nil:
		replacement = []byte(*sub.Replacement)
	case sub.ReplacementFile != nil:
		mantalon.Log().Warn("edit: replacement_file substitutions are not supported, skipping", zap.String("pattern", sub.Pattern))
		return body
	}

	limit := -1
	if sub.MaxReplacements != nil {
		limit = *sub.MaxReplacements
	}

	var out bytes.Buffer
	pos, count := 0, 0
	for limit < 0 || count < limit {
		rel := bytes.Index(body[pos:], pattern)
		if rel < 0 {
			break
		}
		out.Write(body[pos : pos+rel])
		out.Write(replacement)
		pos += rel + len(pattern)
		count++
	}
	out.Write(body[pos:])
	return out.Bytes()
}

// SynthesizeJSRedirect replaces a redirect response with a same-origin 200
// HTML page that performs the redirect via script, when rule.JSRedirect is
// set (spec.md §4.6, "JS redirect"). It reports whether it did anything.
func SynthesizeJSRedirect(resp *http.Response, rule *manifest.Rule) bool {
	if !rule.JSRedirect {
		return false
	}
	if resp.StatusCode < 300 || resp.StatusCode >= 400 {
		return false
	}
	target := resp.Header.Get("Location")
	if target == "" {
		return false
	}

	page := []byte(renderJSRedirect(target))

	resp.StatusCode = http.StatusOK
	resp.Status = http.StatusText(http.StatusOK)
	resp.Header.Set("x-mantalon-location", target)
	resp.Header.Del("Location")
	resp.Header.Set("Content-Type", "text/html; charset=utf-8")
	resp.Header.Set("Content-Length", strconv.Itoa(len(page)))
	resp.ContentLength = int64(len(page))
	resp.Body = io.NopCloser(bytes.NewReader(page))

	return true
}
