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

package mantalon

import "fmt"

// Kind classifies an Error by which part of the pipeline raised it.
type Kind string

const (
	KindConfig    Kind = "config"
	KindRouting   Kind = "routing"
	KindTransport Kind = "transport"
	KindBody      Kind = "body"
	KindCookie    Kind = "cookie"
	KindManifest  Kind = "manifest"
)

// Error is the common error type raised by every mantalon package. Code
// names one of the surface error names from spec.md §7 (e.g. "EndpointNotSet",
// "NoCommonProtocol"); Err, if non-nil, is the underlying cause.
type Error struct {
	Kind Kind
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mantalon: %s: %s: %v", e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("mantalon: %s: %s", e.Kind, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// E constructs an *Error. Use it rather than fmt.Errorf so callers can
// errors.As to inspect Kind/Code instead of matching on message text.
func E(kind Kind, code string, err error) *Error {
	return &Error{Kind: kind, Code: code, Err: err}
}

// Is lets errors.Is(err, E(KindTransport, "TunnelOpenFailed", nil)) match any
// error of the same kind+code regardless of the wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Code == e.Code
}

var (
	ErrEndpointNotSet   = E(KindConfig, "EndpointNotSet", nil)
	ErrMissingDomain    = E(KindConfig, "MissingDomain", nil)
	ErrInvalidPattern   = E(KindConfig, "InvalidPattern", nil)
	ErrInvalidOverride  = E(KindConfig, "InvalidOverrideUrl", nil)
	ErrInvalidBaseURL   = E(KindConfig, "InvalidBaseUrl", nil)
	ErrInvalidHeader    = E(KindConfig, "InvalidHeader", nil)
	ErrNoScheme         = E(KindRouting, "NoScheme", nil)
	ErrUnsupportedSchem = E(KindRouting, "UnsupportedScheme", nil)
	ErrNoHost           = E(KindRouting, "NoHost", nil)
	ErrServerNameParse  = E(KindRouting, "ServerNameParseError", nil)
	ErrUnsupportedSNI   = E(KindRouting, "UnsupportedServerNameType", nil)
	ErrTunnelOpenFailed = E(KindTransport, "TunnelOpenFailed", nil)
	ErrTunnelNotOpen    = E(KindTransport, "TunnelNotOpen", nil)
	ErrTLSConnect       = E(KindTransport, "TlsConnect", nil)
	ErrHandshakeFailed  = E(KindTransport, "HandshakeFailed", nil)
	ErrNoCommonProtocol = E(KindTransport, "NoCommonProtocol", nil)
	ErrConnNotReady     = E(KindTransport, "ConnectionNotReady", nil)
	ErrProtocol         = E(KindTransport, "ProtocolError", nil)
	ErrNonDataFrame     = E(KindBody, "NonDataFrame", nil)
	ErrNoOrigin         = E(KindCookie, "NoOrigin", nil)
	ErrInvalidCookie    = E(KindCookie, "InvalidCookieHeader", nil)
	ErrManifestFetch    = E(KindManifest, "FetchError", nil)
	ErrManifestDecode   = E(KindManifest, "DecodeError", nil)
	ErrManifestParse    = E(KindManifest, "ParseError", nil)
)

// HostError wraps a failure surfaced by a pull-based body source (the Go
// stand-in for the browser host raising an exception during a stream read).
func HostError(msg string) *Error {
	return E(KindBody, "HostError", fmt.Errorf("%s", msg))
}
