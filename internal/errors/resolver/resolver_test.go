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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpmdev/fpm/internal/errors"
	"github.com/fpmdev/fpm/internal/gitutil"
	bundleresolver "github.com/fpmdev/fpm/internal/resolver"
	"github.com/fpmdev/fpm/internal/util/publish"
)

func TestResolveNotASourceUsesExitCode2(t *testing.T) {
	err := errors.E(errors.Op("publish.Run"), errors.Usage,
		&publish.NotASourceError{Dir: "/ws"})

	rr, found := ResolveError(err)
	require.True(t, found)
	assert.Equal(t, NotASourceExitCode, rr.ExitCode)
	assert.Contains(t, rr.Message, "nothing to publish")
}

func TestResolveGitExecError(t *testing.T) {
	err := errors.E(errors.Op("install.Run"), errors.Git, &gitutil.GitExecError{
		Type:   gitutil.RepositoryUnavailable,
		Err:    fmt.Errorf("exit status 128"),
		Repo:   "https://github.com/acme/down.git",
		StdErr: "fatal: Could not resolve host",
	})

	rr, found := ResolveError(err)
	require.True(t, found)
	assert.Equal(t, 1, rr.ExitCode)
	assert.Contains(t, rr.Message, "Unable to access repository")
	assert.Contains(t, rr.Message, "Could not resolve host")
}

func TestResolveRefNotFound(t *testing.T) {
	err := errors.E(errors.Op("resolver.ResolveEntry"), errors.Resolve,
		&bundleresolver.RefNotFoundError{Version: "9.9.9", Repo: "github.com/acme/lib"})

	rr, found := ResolveError(err)
	require.True(t, found)
	assert.Equal(t, 1, rr.ExitCode)
	assert.Contains(t, rr.Message, "9.9.9")
}

func TestResolveCycle(t *testing.T) {
	err := errors.E(errors.Op("resolver.checkCycle"), errors.Cycle,
		&bundleresolver.CycleError{Via: []string{"a", "b", "a"}})

	rr, found := ResolveError(err)
	require.True(t, found)
	assert.Contains(t, rr.Message, "a -> b -> a")
}

func TestResolveUnknownErrorNotFound(t *testing.T) {
	_, found := ResolveError(fmt.Errorf("mystery"))
	assert.False(t, found)
}
