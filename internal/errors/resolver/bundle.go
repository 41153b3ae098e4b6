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
	goerrors "errors"
	"fmt"

	"github.com/fpmdev/fpm/internal/errors"
	"github.com/fpmdev/fpm/internal/manifest"
	"github.com/fpmdev/fpm/internal/resolver"
	"github.com/fpmdev/fpm/internal/util/publish"
)

//nolint:gochecknoinits
func init() {
	AddErrorResolver(&bundleErrorResolver{})
}

// NotASourceExitCode is the exit code for publishing a manifest that
// declares no artifact root.
const NotASourceExitCode = 2

// bundleErrorResolver produces messages for the engine's own error types:
// manifest codec failures, resolve failures, cycles and usage errors.
type bundleErrorResolver struct{}

func (*bundleErrorResolver) Resolve(err error) (ResolvedResult, bool) {
	var notASource *publish.NotASourceError
	if goerrors.As(err, &notASource) {
		return ResolvedResult{
			Message:  "Error: " + notASource.Error(),
			ExitCode: NotASourceExitCode,
		}, true
	}

	var missing *manifest.MissingFieldError
	if goerrors.As(err, &missing) {
		return ResolvedResult{
			Message: fmt.Sprintf("Error: %v. Add the field to bundle.toml and retry.", missing),
		}, true
	}

	var malformed *manifest.MalformedError
	if goerrors.As(err, &malformed) {
		return ResolvedResult{
			Message: fmt.Sprintf("Error: %v.", malformed),
		}, true
	}

	var refNotFound *resolver.RefNotFoundError
	if goerrors.As(err, &refNotFound) {
		return ResolvedResult{
			Message: fmt.Sprintf("Error: %v. Check the declared version against the tags and branches of the repository.", refNotFound),
		}, true
	}

	var invalidPath *resolver.InvalidPathError
	if goerrors.As(err, &invalidPath) {
		return ResolvedResult{
			Message: fmt.Sprintf("Error: %v.", invalidPath),
		}, true
	}

	var cycle *resolver.CycleError
	if goerrors.As(err, &cycle) {
		return ResolvedResult{
			Message: fmt.Sprintf("Error: %v. Break the cycle by removing one of the dependencies.", cycle),
		}, true
	}

	if errors.KindOf(err) == errors.Usage {
		return ResolvedResult{
			Message: "Error: " + err.Error(),
		}, true
	}

	return ResolvedResult{}, false
}
