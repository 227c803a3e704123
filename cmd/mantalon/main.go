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

// Command mantalon runs a same-origin HTTP proxy: it serves a local HTTP
// listener, forwards every request through the Fetch Facade and its
// relay-tunneled connection pool, and serves the rewritten response back.
package main

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	// Registers a fallback trusted root bundle for when the host has no
	// system certificate store (minimal container base images), so the
	// TLS dial in proxy.Pool.open still has something to verify against.
	_ "golang.org/x/crypto/x509roots/fallback"

	"github.com/Mubelotix/mantalon"
	"github.com/Mubelotix/mantalon/cookies"
	"github.com/Mubelotix/mantalon/engine"
)

func main() {
	var (
		listenAddr    = pflag.String("listen", ":8088", "local address to serve the proxy on")
		relayURL      = pflag.String("endpoint", "ws://localhost:8000/mantalon-connect", "relay server's base WebSocket endpoint")
		manifestURL   = pflag.String("manifest", "", "URL to fetch the manifest from (optional)")
		selfOriginRaw = pflag.String("self-origin", "http://localhost:8088", "origin this proxy is reachable at")
		cookieFile    = pflag.String("cookie-file", "", "path to persist cookies to (optional, in-memory if unset)")
		refreshEvery  = pflag.Duration("manifest-refresh", 5*time.Minute, "how often to re-fetch the manifest")
	)
	pflag.Parse()

	selfOrigin, err := url.Parse(*selfOriginRaw)
	if err != nil {
		mantalon.Log().Fatal("invalid --self-origin", zap.Error(err))
	}

	var store cookies.Store
	if *cookieFile != "" {
		store = cookies.NewFileStore(*cookieFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := engine.Init(ctx, engine.Config{
		RelayURL:    *relayURL,
		ManifestURL: *manifestURL,
		SelfOrigin:  selfOrigin,
		CookieStore: store,
	})
	if err != nil {
		mantalon.Log().Fatal("engine init failed", zap.Error(err))
	}

	if *manifestURL != "" {
		go e.RefreshLoop(ctx, *manifestURL, *refreshEvery)
	}

	srv := &http.Server{
		Addr:    *listenAddr,
		Handler: newHandler(e),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	mantalon.Log().Info("mantalon: listening", zap.String("addr", *listenAddr), zap.String("endpoint", *relayURL))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		mantalon.Log().Fatal("server exited", zap.Error(err))
	}
}
