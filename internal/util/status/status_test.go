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

package status_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpmdev/fpm/internal/printer/fake"
	"github.com/fpmdev/fpm/internal/resolver"
	"github.com/fpmdev/fpm/internal/testutil"
	"github.com/fpmdev/fpm/internal/util/install"
	"github.com/fpmdev/fpm/internal/util/status"
)

const (
	libSHA   = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	movedSHA = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func setupWorkspace(t *testing.T, gw *testutil.FakeGateway) string {
	t.Helper()
	gw.AddRepo("https://github.com/acme/lib.git").
		Commit(libSHA, map[string]string{"lib.txt": "v1"}).
		Tag("v1.0.0", libSHA).
		Branch("main", libSHA)

	dir := t.TempDir()
	testutil.WriteManifest(t, dir, `
fpm_version = "0.3.0"
identifier = "my-project"

[bundles.lib]
version = "1.0.0"
git = "https://github.com/acme/lib.git"
`)
	_, err := install.Command{
		ManifestPath: filepath.Join(dir, "bundle.toml"),
		Gateway:      gw,
	}.Run(fake.CtxWithNilPrinter())
	require.NoError(t, err)
	return dir
}

func TestRunReportsSyncedAfterInstall(t *testing.T) {
	gw := testutil.NewFakeGateway()
	dir := setupWorkspace(t, gw)

	report, err := status.Command{
		ManifestPath: filepath.Join(dir, "bundle.toml"),
		Gateway:      gw,
	}.Run(fake.CtxWithNilPrinter())
	require.NoError(t, err)

	require.Len(t, report.Entries, 1)
	assert.Equal(t, "lib", string(report.Entries[0].Bundle))
	assert.Equal(t, resolver.StatusSynced, report.Entries[0].Status)
}

func TestRunReportsUnsyncedWhenNotInstalled(t *testing.T) {
	gw := testutil.NewFakeGateway()
	gw.AddRepo("https://github.com/acme/lib.git").
		Commit(libSHA, map[string]string{"lib.txt": "v1"}).
		Tag("v1.0.0", libSHA)

	dir := t.TempDir()
	testutil.WriteManifest(t, dir, `
fpm_version = "0.3.0"
identifier = "my-project"

[bundles.lib]
version = "1.0.0"
git = "https://github.com/acme/lib.git"
`)

	report, err := status.Command{
		ManifestPath: filepath.Join(dir, "bundle.toml"),
		Gateway:      gw,
	}.Run(fake.CtxWithNilPrinter())
	require.NoError(t, err)

	require.Len(t, report.Entries, 1)
	assert.Equal(t, resolver.StatusUnsynced, report.Entries[0].Status)
	assert.Equal(t, "not installed", report.Entries[0].Detail)
}

func TestRunReportsUnsyncedWhenBranchMoved(t *testing.T) {
	gw := testutil.NewFakeGateway()
	repo := gw.AddRepo("https://github.com/acme/lib.git").
		Commit(libSHA, map[string]string{"lib.txt": "v1"}).
		Branch("main", libSHA)

	dir := t.TempDir()
	testutil.WriteManifest(t, dir, `
fpm_version = "0.3.0"
identifier = "my-project"

[bundles.lib]
version = "main"
git = "https://github.com/acme/lib.git"
`)
	_, err := install.Command{
		ManifestPath: filepath.Join(dir, "bundle.toml"),
		Gateway:      gw,
	}.Run(fake.CtxWithNilPrinter())
	require.NoError(t, err)

	repo.Commit(movedSHA, map[string]string{"lib.txt": "v2"}).Branch("main", movedSHA)

	report, err := status.Command{
		ManifestPath: filepath.Join(dir, "bundle.toml"),
		Gateway:      gw,
	}.Run(fake.CtxWithNilPrinter())
	require.NoError(t, err)
	require.Len(t, report.Entries, 1)
	assert.Equal(t, resolver.StatusUnsynced, report.Entries[0].Status)
}

func TestRunReportsSourceForRootManifest(t *testing.T) {
	gw := testutil.NewFakeGateway()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "components"), 0700))
	testutil.WriteManifest(t, dir, `
fpm_version = "0.3.0"
identifier = "my-project"
root = "components"
`)

	report, err := status.Command{
		ManifestPath: filepath.Join(dir, "bundle.toml"),
		Gateway:      gw,
	}.Run(fake.CtxWithNilPrinter())
	require.NoError(t, err)

	require.Len(t, report.Entries, 1)
	assert.Equal(t, ".", string(report.Entries[0].Bundle))
	assert.Equal(t, resolver.StatusSource, report.Entries[0].Status)
	assert.False(t, report.Entries[0].Dirty)
}

func TestRunOfflineUsesCachedRefs(t *testing.T) {
	gw := testutil.NewFakeGateway()
	dir := setupWorkspace(t, gw)
	gw.Ops = nil

	// the remote goes away; offline status still answers from markers
	gw.Repos["github.com/acme/lib"].Unreachable = true

	report, err := status.Command{
		ManifestPath: filepath.Join(dir, "bundle.toml"),
		Gateway:      gw,
		Offline:      true,
	}.Run(fake.CtxWithNilPrinter())
	require.NoError(t, err)

	require.Len(t, report.Entries, 1)
	assert.Equal(t, resolver.StatusSynced, report.Entries[0].Status)
	assert.Equal(t, 0, gw.OpCount("ls-remote"))
}

func TestRunUnreachableRemoteReportsUnsynced(t *testing.T) {
	gw := testutil.NewFakeGateway()
	dir := setupWorkspace(t, gw)

	gw.Repos["github.com/acme/lib"].Unreachable = true

	report, err := status.Command{
		ManifestPath: filepath.Join(dir, "bundle.toml"),
		Gateway:      gw,
	}.Run(fake.CtxWithNilPrinter())
	require.NoError(t, err)

	require.Len(t, report.Entries, 1)
	assert.Equal(t, resolver.StatusUnsynced, report.Entries[0].Status)
	assert.Equal(t, "remote unreachable", report.Entries[0].Detail)
}

func TestRunMakesNoWrites(t *testing.T) {
	gw := testutil.NewFakeGateway()
	dir := setupWorkspace(t, gw)
	gw.Ops = nil

	_, err := status.Command{
		ManifestPath: filepath.Join(dir, "bundle.toml"),
		Gateway:      gw,
	}.Run(fake.CtxWithNilPrinter())
	require.NoError(t, err)

	assert.Equal(t, 0, gw.OpCount("clone"))
	assert.Equal(t, 0, gw.OpCount("commit"))
	assert.Equal(t, 0, gw.OpCount("push"))
	assert.Equal(t, 0, gw.OpCount("stage"))
}

func TestRunRendersTable(t *testing.T) {
	gw := testutil.NewFakeGateway()
	dir := setupWorkspace(t, gw)

	var out bytes.Buffer
	ctx := fake.CtxWithPrinter(&out, &out)
	_, err := status.Command{
		ManifestPath: filepath.Join(dir, "bundle.toml"),
		Gateway:      gw,
	}.Run(ctx)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "BUNDLE")
	assert.Contains(t, out.String(), "lib")
	assert.Contains(t, out.String(), "synced")
	assert.Contains(t, out.String(), "Total: 1 synced, 0 unsynced, 0 source")
}

func TestRunRendersTree(t *testing.T) {
	gw := testutil.NewFakeGateway()
	dir := setupWorkspace(t, gw)

	var out bytes.Buffer
	ctx := fake.CtxWithPrinter(&out, &out)
	_, err := status.Command{
		ManifestPath: filepath.Join(dir, "bundle.toml"),
		Gateway:      gw,
		Tree:         true,
	}.Run(ctx)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "lib [synced]")
}
