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

package marker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := &Marker{
		Repo:   "github.com/martha/designs",
		Ref:    "v1.0.0",
		Commit: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Path:   "assets",
	}
	require.NoError(t, Write(dir, in))

	out := Read(dir)
	require.NotNil(t, out)
	assert.Equal(t, in, out)
}

func TestReadMissingReturnsNil(t *testing.T) {
	assert.Nil(t, Read(t.TempDir()))
}

func TestReadCorruptReturnsNil(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName),
		[]byte("{{not yaml"), 0600))
	assert.Nil(t, Read(dir))
}

func TestReadWithoutCommitReturnsNil(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName),
		[]byte("repo: github.com/x/y\nref: main\n"), 0600))
	assert.Nil(t, Read(dir))
}
