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

// Package engine bundles the Connection Pool, Manifest Store, Cookie Jar
// and relay Endpoint into the single process-wide facade a host binds its
// HTTP surface to (spec.md §4, component wiring).
package engine

import (
	"context"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/Mubelotix/mantalon"
	"github.com/Mubelotix/mantalon/cookies"
	"github.com/Mubelotix/mantalon/fetch"
	"github.com/Mubelotix/mantalon/manifest"
	"github.com/Mubelotix/mantalon/proxy"
)

// Engine owns every long-lived component of a running mantalon process.
type Engine struct {
	Endpoint *proxy.Endpoint
	Pool     *proxy.Pool
	Manifest *manifest.Store
	Cookies  *cookies.Jar
	Fetch    *fetch.Facade
}

// Config collects the init-time parameters a host binary supplies.
type Config struct {
	// RelayURL is the relay's base WebSocket URL, e.g. "ws://localhost:8000/mantalon-connect".
	RelayURL string
	// ManifestURL is fetched on Init and on every Refresh.
	ManifestURL string
	// SelfOrigin is the origin the browser sees mantalon serving under.
	SelfOrigin *url.URL
	// CookieStore persists the cookie jar between runs; defaults to an
	// in-memory store if nil.
	CookieStore cookies.Store
}

// Init constructs an Engine, sets the relay endpoint, loads any persisted
// cookies, and performs the first manifest fetch. A failed first manifest
// fetch is non-fatal: the pre-init default manifest (spec.md §4.5) is kept.
func Init(ctx context.Context, cfg Config) (*Engine, error) {
	endpoint := &proxy.Endpoint{}
	endpoint.Set(cfg.RelayURL)

	store := cfg.CookieStore
	if store == nil {
		store = &cookies.MemoryStore{}
	}
	jar := cookies.New(store)
	if err := jar.Load(ctx); err != nil {
		mantalon.Log().Warn("engine: could not load persisted cookies", zap.Error(err))
	}

	pool := proxy.NewPool(endpoint)
	manifestStore := manifest.NewStore()

	e := &Engine{
		Endpoint: endpoint,
		Pool:     pool,
		Manifest: manifestStore,
		Cookies:  jar,
	}
	e.Fetch = fetch.New(manifestStore, jar, pool, cfg.SelfOrigin)

	if cfg.ManifestURL != "" {
		if err := manifestStore.Refresh(ctx, nil, cfg.ManifestURL); err != nil {
			mantalon.Log().Warn("engine: initial manifest fetch failed, using default", zap.Error(err))
		}
	}

	return e, nil
}

// ProxiedDomains exposes the current manifest's domain list.
func (e *Engine) ProxiedDomains() []string {
	return e.Manifest.ProxiedDomains()
}

// RefreshLoop periodically re-fetches the manifest from manifestURL until
// ctx is canceled. Call it in its own goroutine.
func (e *Engine) RefreshLoop(ctx context.Context, manifestURL string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.Manifest.Refresh(ctx, nil, manifestURL); err != nil {
				mantalon.Log().Warn("engine: manifest refresh failed", zap.Error(err))
			}
		}
	}
}
