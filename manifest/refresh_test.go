package manifest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRefreshSwapsAtomically(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"domains":["example.test"],"content_edits":[]}`))
	}))
	defer srv.Close()

	s := NewStore()
	assert.Equal(t, []string{"localhost"}, s.Current().Domains)

	err := s.Refresh(context.Background(), srv.Client(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []string{"example.test"}, s.Current().Domains)
}

func TestStoreRefreshKeepsPreviousManifestOnDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	s := NewStore()
	err := s.Refresh(context.Background(), srv.Client(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, []string{"localhost"}, s.Current().Domains)
}

func TestStoreRefreshKeepsPreviousManifestOnMissingDomain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"domains":[],"content_edits":[]}`))
	}))
	defer srv.Close()

	s := NewStore()
	err := s.Refresh(context.Background(), srv.Client(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, []string{"localhost"}, s.Current().Domains)
}
