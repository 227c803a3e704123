package edit

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mubelotix/mantalon/manifest"
)

func TestApplyRequestRewritesSchemeWhenHTTPSOnly(t *testing.T) {
	src := manifest.Source{
		Domains: []string{"example.test"},
		ContentEdits: []manifest.ContentEdit{
			{Matches: []string{"*"}, HTTPSOnly: boolPtr(true)},
		},
	}
	m, err := manifest.Compile(src)
	require.NoError(t, err)

	u, _ := url.Parse("http://example.test/page")
	req := &http.Request{URL: u, Header: make(http.Header)}

	rule := ApplyRequest(req, m)
	require.NotNil(t, rule)
	assert.Equal(t, "https", req.URL.Scheme)
}

func TestApplyRequestOverrideURIReselectsOnce(t *testing.T) {
	src := manifest.Source{
		Domains: []string{"example.test"},
		ContentEdits: []manifest.ContentEdit{
			{Matches: []string{"https://example.test/old"}, OverrideURL: "https://example.test/new"},
			{Matches: []string{"https://example.test/new"}, InsertHeaders: map[string]string{"x-marker": "new-rule"}},
		},
	}
	m, err := manifest.Compile(src)
	require.NoError(t, err)

	u, _ := url.Parse("https://example.test/old")
	req := &http.Request{URL: u, Header: make(http.Header)}

	rule := ApplyRequest(req, m)
	require.NotNil(t, rule)
	assert.Equal(t, "https://example.test/new", req.URL.String())
	assert.Equal(t, "new-rule", rule.InsertHeaders["X-Marker"])
}

func TestApplyRequestHeaderOps(t *testing.T) {
	src := manifest.Source{
		Domains: []string{"example.test"},
		ContentEdits: []manifest.ContentEdit{
			{
				Matches:              []string{"*"},
				RemoveRequestHeaders: []string{"x-drop"},
				InsertRequestHeaders: map[string]string{"x-insert": "v1"},
				AppendRequestHeaders: map[string]string{"x-append": "v2"},
				RenameRequestHeaders: map[string]string{"x-old": "x-new"},
			},
		},
	}
	m, err := manifest.Compile(src)
	require.NoError(t, err)

	u, _ := url.Parse("https://example.test/")
	req := &http.Request{URL: u, Header: http.Header{
		"X-Drop": []string{"gone"},
		"X-Old":  []string{"kept"},
	}}

	ApplyRequest(req, m)

	assert.Empty(t, req.Header.Get("X-Drop"))
	assert.Equal(t, "v1", req.Header.Get("X-Insert"))
	assert.Equal(t, "v2", req.Header.Get("X-Append"))
	assert.Equal(t, "kept", req.Header.Get("X-New"))
	assert.Empty(t, req.Header.Get("X-Old"))
}

func boolPtr(b bool) *bool { return &b }
