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

package manifest

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/fpmdev/fpm/internal/errors"
)

// SchemaVersion is the manifest schema version this binary writes and the
// reference point for compatibility checks.
const SchemaVersion = "0.3.0"

// CheckCompatibility verifies that a manifest's fpm_version can be handled
// by this binary. A differing major version is an error. A manifest newer
// by minor or patch is accepted with a warning so users learn to upgrade.
// An unparseable fpm_version is an error since the schema cannot be
// identified.
func CheckCompatibility(fpmVersion string) (warning string, err error) {
	const op errors.Op = "manifest.CheckCompatibility"

	mv, perr := semver.StrictNewVersion(fpmVersion)
	if perr != nil {
		return "", errors.E(op, errors.Manifest,
			fmt.Errorf("unknown fpm_version %q: %w", fpmVersion, perr))
	}
	bv := semver.MustParse(SchemaVersion)

	if mv.Major() != bv.Major() {
		return "", errors.E(op, errors.Manifest,
			fmt.Errorf("manifest fpm_version %s is incompatible with schema version %s",
				fpmVersion, SchemaVersion))
	}

	if mv.GreaterThan(bv) {
		return fmt.Sprintf(
			"manifest fpm_version %s is newer than schema version %s; some fields may be ignored",
			fpmVersion, SchemaVersion), nil
	}

	if mv.Minor() < bv.Minor() {
		return fmt.Sprintf(
			"manifest fpm_version %s predates schema version %s; consider updating the manifest",
			fpmVersion, SchemaVersion), nil
	}

	return "", nil
}
