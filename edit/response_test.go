package edit

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mubelotix/mantalon/manifest"
)

func TestApplyResponseRewritesProxiedLocation(t *testing.T) {
	src := manifest.Source{Domains: []string{"example.test"}}
	m, err := manifest.Compile(src)
	require.NoError(t, err)
	rule := m.SelectRule(mustParse(t, "https://example.test/"))

	self := mustParse(t, "https://mantalon.local/")
	resp := &http.Response{Header: http.Header{"Location": []string{"https://example.test/next?x=1"}}}

	ApplyResponse(resp, rule, self, m.Domains)

	assert.Equal(t, "https://mantalon.local/next?x=1", resp.Header.Get("Location"))
	assert.Equal(t, "https://example.test/next?x=1", resp.Header.Get("x-mantalon-location"))
}

func TestApplyResponseLeavesForeignLocationAlone(t *testing.T) {
	src := manifest.Source{Domains: []string{"example.test"}}
	m, err := manifest.Compile(src)
	require.NoError(t, err)
	rule := m.SelectRule(mustParse(t, "https://example.test/"))

	self := mustParse(t, "https://mantalon.local/")
	resp := &http.Response{Header: http.Header{"Location": []string{"https://elsewhere.test/next"}}}

	ApplyResponse(resp, rule, self, m.Domains)

	assert.Equal(t, "https://elsewhere.test/next", resp.Header.Get("Location"))
	assert.Empty(t, resp.Header.Get("x-mantalon-location"))
}

func TestApplyResponseHeaderOps(t *testing.T) {
	src := manifest.Source{
		Domains: []string{"example.test"},
		ContentEdits: []manifest.ContentEdit{
			{
				Matches:       []string{"*"},
				RemoveHeaders: []string{"x-drop"},
				InsertHeaders: map[string]string{"x-insert": "v1"},
				AppendHeaders: map[string]string{"x-append": "v2"},
				RenameHeaders: map[string]string{"x-old": "x-new"},
			},
		},
	}
	m, err := manifest.Compile(src)
	require.NoError(t, err)
	rule := m.SelectRule(mustParse(t, "https://example.test/"))

	self := mustParse(t, "https://mantalon.local/")
	resp := &http.Response{Header: http.Header{
		"X-Drop": []string{"gone"},
		"X-Old":  []string{"kept"},
	}}

	ApplyResponse(resp, rule, self, m.Domains)

	assert.Empty(t, resp.Header.Get("X-Drop"))
	assert.Equal(t, "v1", resp.Header.Get("X-Insert"))
	assert.Equal(t, "v2", resp.Header.Get("X-Append"))
	assert.Equal(t, "kept", resp.Header.Get("X-New"))
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}
