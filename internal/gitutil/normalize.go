// Copyright 2025 The fpm Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gitutil

import (
	"strings"
)

// NormalizeURL reduces a git remote URL to a canonical "host/path" key so
// that the same repository reached over SSH and HTTPS compares equal. The
// host is lowercased, a trailing ".git" is stripped, and both the
// "git@host:path" and "scheme://host/path" forms collapse to the same key.
// The gateway never interprets URLs; normalization exists purely for cycle
// detection and marker comparison.
func NormalizeURL(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, "/")
	s = strings.TrimSuffix(s, ".git")

	// scheme://[user@]host/path
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
		if at := strings.Index(s, "@"); at >= 0 {
			s = s[at+1:]
		}
		return lowercaseHost(s, "/")
	}

	// user@host:path (scp-like syntax)
	if at := strings.Index(s, "@"); at >= 0 {
		if colon := strings.Index(s[at:], ":"); colon >= 0 {
			host := s[at+1 : at+colon]
			path := strings.TrimPrefix(s[at+colon+1:], "/")
			return strings.ToLower(host) + "/" + path
		}
	}

	return lowercaseHost(s, "/")
}

// lowercaseHost lowercases everything before the first sep in s.
func lowercaseHost(s, sep string) string {
	if i := strings.Index(s, sep); i >= 0 {
		return strings.ToLower(s[:i]) + s[i:]
	}
	return strings.ToLower(s)
}
