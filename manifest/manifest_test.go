package manifest

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestDefaultManifestHasWildcardRule(t *testing.T) {
	m := Default()
	require.Len(t, m.Rules, 1)
	rule := m.SelectRule(mustURL(t, "https://anything.example/path"))
	require.NotNil(t, rule)
	assert.True(t, rule.RewriteLocation)
}

func TestCompileRequiresAtLeastOneDomain(t *testing.T) {
	_, err := Compile(Source{})
	require.Error(t, err)
}

func TestCompileAppendsSyntheticWildcardRule(t *testing.T) {
	src := Source{
		Domains: []string{"example.test"},
		ContentEdits: []ContentEdit{
			{Matches: []string{"https://example.test/special"}},
		},
	}
	c, err := Compile(src)
	require.NoError(t, err)
	require.Len(t, c.Rules, 2)

	rule := c.SelectRule(mustURL(t, "https://other.test/anything"))
	require.NotNil(t, rule)
	assert.Len(t, rule.Matches, 1)
}

func TestWildcardPatternMatchesEveryURL(t *testing.T) {
	p := universalPattern()
	assert.True(t, p.matches(mustURL(t, "https://a.test/x?y=1")))
	assert.True(t, p.matches(mustURL(t, "http://b.test/")))
}

func TestHTTPSchemeOnlyPattern(t *testing.T) {
	base := mustURL(t, "https://example.test/")
	p, err := compilePattern("http://*", base)
	require.NoError(t, err)
	assert.True(t, p.matches(mustURL(t, "http://anything.test/x")))
	assert.False(t, p.matches(mustURL(t, "https://anything.test/x")))
}

func TestHostOnlyPatternNarrowsToDomain(t *testing.T) {
	base := mustURL(t, "https://example.test/")
	p, err := compilePattern("https://example.test/*", base)
	require.NoError(t, err)
	assert.True(t, p.matches(mustURL(t, "https://example.test/a/b")))
	assert.False(t, p.matches(mustURL(t, "https://other.test/a/b")))
}

func TestFirstMatchingRuleWins(t *testing.T) {
	src := Source{
		Domains: []string{"example.test"},
		ContentEdits: []ContentEdit{
			{Matches: []string{"https://example.test/a"}, LockBrowsing: boolPtr(true)},
			{Matches: []string{"*"}, LockBrowsing: boolPtr(false)},
		},
	}
	c, err := Compile(src)
	require.NoError(t, err)

	rule := c.SelectRule(mustURL(t, "https://example.test/a"))
	assert.True(t, rule.LockBrowsing)
}

func TestInvalidHeaderIsDroppedNotFatal(t *testing.T) {
	src := Source{
		Domains: []string{"example.test"},
		ContentEdits: []ContentEdit{
			{Matches: []string{"https://example.test/a"}, RemoveHeaders: []string{"X Bad Header"}},
		},
	}
	c, err := Compile(src)
	require.NoError(t, err)
	// The rule itself still compiles; only the invalid header is skipped.
	require.Len(t, c.Rules, 2)
	assert.Empty(t, c.Rules[0].RemoveHeaders)
}

func TestHeaderRenameParsesBothSides(t *testing.T) {
	src := Source{
		Domains: []string{"example.test"},
		ContentEdits: []ContentEdit{
			{Matches: []string{"*"}, RenameHeaders: map[string]string{"x-old": "x-new"}},
		},
	}
	c, err := Compile(src)
	require.NoError(t, err)
	assert.Equal(t, "X-New", c.Rules[0].RenameHeaders["X-Old"])
}

func boolPtr(b bool) *bool { return &b }
