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

package resolver

import (
	"fmt"
	"path"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/fpmdev/fpm/internal/gitutil"
)

// RefNotFoundError reports a declared version that no ref on the remote
// satisfies.
type RefNotFoundError struct {
	Version string
	Repo    string
}

func (e *RefNotFoundError) Error() string {
	return fmt.Sprintf("no ref found for version %q in %s", e.Version, e.Repo)
}

// InvalidPathError reports a dependency path that escapes the repository
// root.
type InvalidPathError struct {
	Path string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("path %q escapes the repository root", e.Path)
}

// CandidateRefs maps a declared version to the refs to try, in order. A
// semver version X.Y.Z (with optional pre-release suffix) is tried as
// v<version> first, then as the bare version; anything else is a literal
// ref name.
func CandidateRefs(version string) []string {
	if _, err := semver.StrictNewVersion(version); err == nil {
		return []string{"v" + version, version}
	}
	return []string{version}
}

// resolveAgainstRefs maps a declared version onto the refs advertised by a
// remote. A version that matches no ref but looks like a full commit SHA
// resolves to itself: commits are valid pins even though ls-remote does
// not advertise them.
func resolveAgainstRefs(refs gitutil.RemoteRefs, repoKey, version string) (ref, sha string, err error) {
	for _, cand := range CandidateRefs(version) {
		if commit, found := refs.Resolve(cand); found {
			return cand, commit, nil
		}
	}
	if IsCommitSHA(version) {
		return version, version, nil
	}
	return "", "", &RefNotFoundError{Version: version, Repo: repoKey}
}

// IsCommitSHA reports whether s is a full 40-char hex object name.
func IsCommitSHA(s string) bool {
	if len(s) != 40 {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// ValidateSubPath verifies that a dependency's path stays inside the
// repository: relative, and free of ".." traversal once cleaned.
func ValidateSubPath(p string) error {
	if p == "" {
		return nil
	}
	if strings.HasPrefix(p, "/") {
		return &InvalidPathError{Path: p}
	}
	clean := path.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return &InvalidPathError{Path: p}
	}
	return nil
}
