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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeURL(t *testing.T) {
	testCases := map[string]struct {
		url      string
		expected string
	}{
		"https with .git suffix": {
			url:      "https://github.com/martha/designs.git",
			expected: "github.com/martha/designs",
		},
		"https without suffix": {
			url:      "https://github.com/martha/designs",
			expected: "github.com/martha/designs",
		},
		"scp-like ssh syntax": {
			url:      "git@github.com:company/shared-components.git",
			expected: "github.com/company/shared-components",
		},
		"ssh scheme": {
			url:      "ssh://git@github.com/company/shared-components.git",
			expected: "github.com/company/shared-components",
		},
		"uppercase host is folded": {
			url:      "https://GitHub.COM/Martha/Designs.git",
			expected: "github.com/Martha/Designs",
		},
		"trailing slash": {
			url:      "https://example.com/repo/",
			expected: "example.com/repo",
		},
		"scp-like with leading slash in path": {
			url:      "git@example.com:/srv/repo.git",
			expected: "example.com/srv/repo",
		},
	}

	for tn, tc := range testCases {
		t.Run(tn, func(t *testing.T) {
			assert.Equal(t, tc.expected, NormalizeURL(tc.url))
		})
	}
}

func TestNormalizeURLCollapsesTransports(t *testing.T) {
	// The same repository reached over SSH and HTTPS must produce the same
	// cycle-detection key.
	https := NormalizeURL("https://github.com/company/shared-components.git")
	ssh := NormalizeURL("git@github.com:company/shared-components.git")
	assert.Equal(t, https, ssh)
}

func TestDetermineErrorType(t *testing.T) {
	testCases := map[string]struct {
		stderr   string
		expected GitExecErrorType
	}{
		"unknown ref": {
			stderr:   "fatal: ambiguous argument 'v9.9.9': unknown revision or path not in the working tree.",
			expected: UnknownReference,
		},
		"missing remote ref": {
			stderr:   "fatal: couldn't find remote ref v2.0.0",
			expected: UnknownReference,
		},
		"auth required": {
			stderr:   "fatal: could not read Username for 'https://github.com': terminal prompts disabled",
			expected: HTTPSAuthRequired,
		},
		"unreachable host": {
			stderr:   "fatal: unable to access 'https://example.com/repo.git/': Could not resolve host: example.com",
			expected: RepositoryUnavailable,
		},
		"repo not found": {
			stderr:   "fatal: repository 'https://github.com/martha/nope.git' not found",
			expected: RepositoryNotFound,
		},
		"non fast forward": {
			stderr:   "! [rejected]  main -> main (non-fast-forward)",
			expected: PushRejected,
		},
		"unclassified": {
			stderr:   "error: something else entirely",
			expected: Unknown,
		},
	}

	for tn, tc := range testCases {
		t.Run(tn, func(t *testing.T) {
			assert.Equal(t, tc.expected, determineErrorType(tc.stderr))
		})
	}
}
