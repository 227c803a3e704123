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
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Mubelotix/mantalon"
)

// Store holds the current compiled manifest behind an atomic pointer, so
// readers always observe either the whole old manifest or the whole new one
// (spec.md §5, "Manifest refresh is atomic") with no lock held across the
// read.
type Store struct {
	current atomic.Pointer[Compiled]
	group   singleflight.Group
}

// NewStore returns a Store pre-populated with the pre-init default manifest.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(Default())
	return s
}

// Current returns the manifest snapshot in effect right now. The returned
// pointer remains valid and self-consistent even if Refresh swaps in a new
// manifest concurrently.
func (s *Store) Current() *Compiled {
	return s.current.Load()
}

// Refresh fetches manifestURL, compiles it, and atomically swaps it in on
// success. On any failure the previous manifest is left in place (spec.md
// §4.5 step 5, §7 "whole-manifest parse failure leaves the previous
// manifest in place").
func (s *Store) Refresh(ctx context.Context, client *http.Client, manifestURL string) error {
	// Concurrent refreshes against the same URL (e.g. a caller-triggered
	// refresh racing the periodic loop) collapse into a single fetch.
	_, err, _ := s.group.Do(manifestURL, func() (any, error) {
		return nil, s.refreshOnce(ctx, client, manifestURL)
	})
	return err
}

func (s *Store) refreshOnce(ctx context.Context, client *http.Client, manifestURL string) error {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifestURL, nil)
	if err != nil {
		return mantalon.E(mantalon.KindManifest, "FetchError", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return mantalon.E(mantalon.KindManifest, "FetchError", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return mantalon.E(mantalon.KindManifest, "FetchError", err)
	}

	var src Source
	if err := json.Unmarshal(body, &src); err != nil {
		return mantalon.E(mantalon.KindManifest, "DecodeError", err)
	}

	compiled, err := Compile(src)
	if err != nil {
		mantalon.Log().Error("manifest: compile failed, keeping previous manifest", zap.Error(err))
		return mantalon.E(mantalon.KindManifest, "ParseError", err)
	}

	s.current.Store(compiled)
	mantalon.Log().Info("manifest: refreshed", zap.Strings("domains", compiled.Domains), zap.Int("rules", len(compiled.Rules)))
	return nil
}

// ProxiedDomains exposes the compiled manifest's domains (spec.md §6,
// "getProxiedDomains").
func (s *Store) ProxiedDomains() []string {
	return append([]string(nil), s.Current().Domains...)
}
