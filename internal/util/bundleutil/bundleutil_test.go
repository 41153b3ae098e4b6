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

package bundleutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpmdev/fpm/internal/marker"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0700))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

func TestCopySubtreeSkipsGitDir(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "a")
	writeFile(t, filepath.Join(src, "sub", "b.txt"), "b")
	writeFile(t, filepath.Join(src, ".git", "config"), "git")

	require.NoError(t, CopySubtree(src, dst))

	assert.FileExists(t, filepath.Join(dst, "a.txt"))
	assert.FileExists(t, filepath.Join(dst, "sub", "b.txt"))
	assert.NoDirExists(t, filepath.Join(dst, ".git"))
}

func TestClearInstalledPreservesBookkeeping(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "content.txt"), "c")
	writeFile(t, filepath.Join(dir, "sub", "more.txt"), "m")
	writeFile(t, filepath.Join(dir, ".fpm", "nested", "file.txt"), "n")
	writeFile(t, filepath.Join(dir, ".fpm-sync.yaml"), "commit: abc")
	writeFile(t, filepath.Join(dir, ".fpm-repo", "HEAD"), "ref")

	require.NoError(t, ClearInstalled(dir))

	assert.NoFileExists(t, filepath.Join(dir, "content.txt"))
	assert.NoDirExists(t, filepath.Join(dir, "sub"))
	assert.FileExists(t, filepath.Join(dir, ".fpm", "nested", "file.txt"))
	assert.FileExists(t, filepath.Join(dir, ".fpm-sync.yaml"))
	assert.FileExists(t, filepath.Join(dir, ".fpm-repo", "HEAD"))
}

func TestClearInstalledMissingDirIsNoop(t *testing.T) {
	assert.NoError(t, ClearInstalled(filepath.Join(t.TempDir(), "absent")))
}

func TestEnsureInstallDirRejectsNonDirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "occupied")
	writeFile(t, file, "in the way")

	err := EnsureInstallDir(file)
	require.Error(t, err)

	assert.NoError(t, EnsureInstallDir(filepath.Join(dir, "fresh")))
	assert.DirExists(t, filepath.Join(dir, "fresh"))
}

func TestSyncToCloneReplacesSubtreeAndCopiesMarkers(t *testing.T) {
	installDir := t.TempDir()
	cloneDir := t.TempDir()

	writeFile(t, filepath.Join(installDir, "new.txt"), "new")
	writeFile(t, filepath.Join(installDir, ".fpm-sync.yaml"), "commit: own")
	writeFile(t, filepath.Join(installDir, ".fpm", "child", marker.FileName), "commit: childsha")
	writeFile(t, filepath.Join(installDir, ".fpm", "child", "content.txt"), "child content")
	writeFile(t, filepath.Join(installDir, ".fpm-repo", "HEAD"), "ref")

	writeFile(t, filepath.Join(cloneDir, "stale.txt"), "stale")
	writeFile(t, filepath.Join(cloneDir, ".git", "config"), "git")

	require.NoError(t, SyncToClone(installDir, cloneDir, ""))

	assert.FileExists(t, filepath.Join(cloneDir, "new.txt"))
	assert.NoFileExists(t, filepath.Join(cloneDir, "stale.txt"))
	assert.FileExists(t, filepath.Join(cloneDir, ".git", "config"))

	// own bookkeeping stays out, the children's markers go in
	assert.NoFileExists(t, filepath.Join(cloneDir, ".fpm-sync.yaml"))
	assert.NoDirExists(t, filepath.Join(cloneDir, ".fpm-repo"))
	assert.FileExists(t, filepath.Join(cloneDir, ".fpm", "child", marker.FileName))
	assert.NoFileExists(t, filepath.Join(cloneDir, ".fpm", "child", "content.txt"))
}

func TestSyncToCloneWithSubPath(t *testing.T) {
	installDir := t.TempDir()
	cloneDir := t.TempDir()

	writeFile(t, filepath.Join(installDir, "icons", "a.svg"), "<svg/>")
	writeFile(t, filepath.Join(cloneDir, "assets", "icons", "old.svg"), "old")
	writeFile(t, filepath.Join(cloneDir, "README.md"), "untouched")

	require.NoError(t, SyncToClone(installDir, cloneDir, "assets"))

	assert.FileExists(t, filepath.Join(cloneDir, "assets", "icons", "a.svg"))
	assert.NoFileExists(t, filepath.Join(cloneDir, "assets", "icons", "old.svg"))
	assert.FileExists(t, filepath.Join(cloneDir, "README.md"))
}

func TestEnsureBundleDirIgnored(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EnsureBundleDirIgnored(dir))

	data, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, err)
	assert.Contains(t, string(data), ".fpm/**")
	assert.Contains(t, string(data), "!.fpm/*/")
	assert.Contains(t, string(data), "!.fpm/*/"+marker.FileName)
	assert.Contains(t, string(data), ".fpm-repo/")

	// idempotent
	require.NoError(t, EnsureBundleDirIgnored(dir))
	again, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, string(data), string(again))
}

func TestEnsureBundleDirIgnoredAppendsToExisting(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".gitignore"), "/target\n*.log")

	require.NoError(t, EnsureBundleDirIgnored(dir))

	data, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "/target")
	assert.Contains(t, string(data), "*.log")
	assert.Contains(t, string(data), ".fpm/**")
}
