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

// Package body implements the variant-typed request/response Body Source
// (component C2): a lazy, at-most-once sequence of byte chunks unifying an
// empty body, an in-memory buffer, a URL-encoded form, and a pull-based
// reader driven by a host callback.
package body

import (
	"context"
	"io"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/Mubelotix/mantalon"
)

// Source produces a lazy sequence of byte chunks. It must be consumed at
// most once; NextFrame after end-of-stream keeps returning io.EOF.
type Source interface {
	// NextFrame returns the next chunk, or io.EOF when the body is
	// exhausted. Only the PullStream variant can block on ctx.
	NextFrame(ctx context.Context) ([]byte, error)

	// fmt.Stringer-style debug description that never consumes the body.
	String() string
}

// Empty is a body with zero chunks.
type Empty struct{}

func (Empty) NextFrame(context.Context) ([]byte, error) { return nil, io.EOF }
func (Empty) String() string                            { return "body.Empty" }

// InMemory is a body that yields its single chunk then ends.
type InMemory struct {
	data []byte
	mu   sync.Mutex
	sent bool
}

// NewInMemory wraps data as a one-shot Source.
func NewInMemory(data []byte) *InMemory {
	return &InMemory{data: data}
}

func (b *InMemory) NextFrame(context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sent {
		return nil, io.EOF
	}
	b.sent = true
	if len(b.data) == 0 {
		return nil, io.EOF
	}
	return b.data, nil
}

func (b *InMemory) String() string {
	return "body.InMemory(" + strconv.Itoa(len(b.data)) + " bytes)"
}

// Form is a body holding an ordered sequence of key/value pairs, encoded as
// a single "k=v&k2=v2&" chunk. A trailing '&' is emitted and tolerated by
// every known consumer, so it is not stripped.
type Form struct {
	pairs []KV
	mu    sync.Mutex
	sent  bool
}

// KV is one form field.
type KV struct{ Key, Value string }

// NewForm builds a Form body from ordered key/value pairs.
func NewForm(pairs []KV) *Form {
	return &Form{pairs: pairs}
}

func (b *Form) NextFrame(context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sent {
		return nil, io.EOF
	}
	b.sent = true
	if len(b.pairs) == 0 {
		return nil, io.EOF
	}
	var sb strings.Builder
	for _, kv := range b.pairs {
		sb.WriteString(url.QueryEscape(kv.Key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(kv.Value))
		sb.WriteByte('&')
	}
	return []byte(sb.String()), nil
}

func (b *Form) String() string {
	return "body.Form(" + strconv.Itoa(len(b.pairs)) + " fields)"
}

// Reader is the host callback a PullStream reads from: each call returns the
// next chunk, (nil, false, nil) to signal a clean end-of-stream, or an error.
// It is the Go analogue of calling .read() on a ReadableStreamDefaultReader;
// the contract promises it is never called again concurrently with itself.
type Reader func(ctx context.Context) (chunk []byte, ok bool, err error)

// PullStream is a finite, non-restartable sequence produced by calling a
// host reader on demand.
type PullStream struct {
	read Reader
	mu   sync.Mutex
	done bool
}

// NewPullStream wraps a host Reader as a Source.
func NewPullStream(read Reader) *PullStream {
	return &PullStream{read: read}
}

func (b *PullStream) NextFrame(ctx context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return nil, io.EOF
	}
	chunk, ok, err := b.read(ctx)
	if err != nil {
		b.done = true
		if me, isErr := err.(*mantalon.Error); isErr {
			return nil, me
		}
		return nil, mantalon.HostError(err.Error())
	}
	if !ok {
		b.done = true
		return nil, io.EOF
	}
	return chunk, nil
}

func (b *PullStream) String() string { return "body.PullStream" }

var (
	_ Source = Empty{}
	_ Source = (*InMemory)(nil)
	_ Source = (*Form)(nil)
	_ Source = (*PullStream)(nil)
)
