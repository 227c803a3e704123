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

// Package addr derives the canonical Destination Address string that keys
// the connection pool and is understood by the relay: one of
// "/dnsaddr/<host>/tcp/<port>", "/ip4/<dotted>/tcp/<port>", or
// "/ip6/<a:b:c:d:e:f:g:h>/tcp/<port>".
package addr

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/Mubelotix/mantalon"
)

// Of derives the Destination Address for u, defaulting the port from the
// scheme (80 for http, 443 for https) when u carries none.
func Of(u *url.URL) (string, error) {
	scheme := strings.ToLower(u.Scheme)
	host := u.Hostname()
	if host == "" {
		return "", mantalon.ErrNoHost
	}

	port := u.Port()
	if port == "" {
		switch scheme {
		case "http":
			port = "80"
		case "https":
			port = "443"
		default:
			return "", mantalon.E(mantalon.KindRouting, "UnsupportedScheme", fmt.Errorf("%q", u.Scheme))
		}
	}

	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return fmt.Sprintf("/ip4/%s/tcp/%s", v4.String(), port), nil
		}
		return fmt.Sprintf("/ip6/%s/tcp/%s", expandIPv6(ip), port), nil
	}

	return fmt.Sprintf("/dnsaddr/%s/tcp/%s", host, port), nil
}

// expandIPv6 renders ip as eight colon-separated u16 groups, matching the
// original implementation's array-of-u16 formatting (no "::" compaction),
// since the relay's grammar (spec.md §6) does not allow it.
func expandIPv6(ip net.IP) string {
	ip16 := ip.To16()
	groups := make([]string, 8)
	for i := 0; i < 8; i++ {
		groups[i] = fmt.Sprintf("%x", uint16(ip16[i*2])<<8|uint16(ip16[i*2+1]))
	}
	return strings.Join(groups, ":")
}
