package fetch

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripUpstreamHeadersRemovesMantalonPrefixedHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("X-Mantalon-Location", "spoof")
	h.Set("Accept", "text/html")

	stripUpstreamHeaders(h)

	assert.Empty(t, h.Get("X-Mantalon-Location"))
	assert.Equal(t, "text/html", h.Get("Accept"))
}

func TestRenameSetCookieHeadersMovesAllValues(t *testing.T) {
	h := http.Header{}
	h.Add("Set-Cookie", "a=1")
	h.Add("Set-Cookie", "b=2")

	renameSetCookieHeaders(h)

	assert.Empty(t, h.Values("Set-Cookie"))
	assert.Equal(t, "a=1", h.Get("x-mantalon-set-cookie"))
	assert.Equal(t, "b=2", h.Get("x-mantalon-set-cookie-1"))
}

func TestRenameSetCookieHeadersAlsoRenamesSetCookie2(t *testing.T) {
	h := http.Header{}
	h.Add("Set-Cookie", "a=1")
	h.Add("Set-Cookie2", "b=2")
	h.Add("Set-Cookie2", "c=3")

	renameSetCookieHeaders(h)

	assert.Empty(t, h.Values("Set-Cookie"))
	assert.Empty(t, h.Values("Set-Cookie2"))
	assert.Equal(t, "a=1", h.Get("x-mantalon-set-cookie"))
	assert.Equal(t, "b=2", h.Get("x-mantalon-set-cookie2"))
	assert.Equal(t, "c=3", h.Get("x-mantalon-set-cookie2-1"))
}

func TestRenameSetCookieHeadersNoopWhenAbsent(t *testing.T) {
	h := http.Header{}
	h.Set("Accept", "*/*")
	renameSetCookieHeaders(h)
	assert.Equal(t, "*/*", h.Get("Accept"))
}
