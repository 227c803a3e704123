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

package main

import (
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Mubelotix/mantalon"
	"github.com/Mubelotix/mantalon/engine"
)

// requestIDHeader lets a front-end load balancer pass through its own
// correlation ID instead of having mantalon mint a fresh one.
const requestIDHeader = "X-Request-Id"

// handler adapts net/http's server-side request/response model onto the
// Fetch Facade, the role the browser's fetch() override plays in the
// original wasm build (spec.md §4.8).
type handler struct {
	engine *engine.Engine
}

func newHandler(e *engine.Engine) http.Handler {
	return &handler{engine: e}
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, err := uuid.Parse(r.Header.Get(requestIDHeader))
	if err != nil {
		reqID = uuid.New()
	}
	log := mantalon.Log().With(zap.String("request_id", reqID.String()))

	target := &url.URL{
		Scheme:   "https",
		Host:     r.Host,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
	}

	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), r.Body)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	outReq.Header = r.Header.Clone()

	resp, err := h.engine.Fetch.Do(r.Context(), outReq)
	if err != nil {
		log.Error("mantalon: fetch failed", zap.String("url", target.String()), zap.Error(err))
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	dst := w.Header()
	for name, values := range resp.Header {
		for _, v := range values {
			dst.Add(name, v)
		}
	}
	dst.Set(requestIDHeader, reqID.String())
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

var _ http.Handler = (*handler)(nil)
