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

package push_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpmdev/fpm/internal/errors"
	"github.com/fpmdev/fpm/internal/marker"
	"github.com/fpmdev/fpm/internal/printer/fake"
	"github.com/fpmdev/fpm/internal/testutil"
	"github.com/fpmdev/fpm/internal/util/install"
	"github.com/fpmdev/fpm/internal/util/push"
)

const (
	assetsSHA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	uiSHA     = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	stylesSHA = "cccccccccccccccccccccccccccccccccccccccc"
)

// setupLeaf installs one bundle from a repo whose main branch matches the
// v1.0.0 tag, and returns the workspace dir.
func setupLeaf(t *testing.T, gw *testutil.FakeGateway) string {
	t.Helper()
	gw.AddRepo("https://github.com/acme/ui-assets.git").
		Commit(assetsSHA, map[string]string{"assets/icons/a.svg": "<svg/>"}).
		Tag("v1.0.0", assetsSHA).
		Branch("main", assetsSHA)

	dir := t.TempDir()
	testutil.WriteManifest(t, dir, `
fpm_version = "0.3.0"
identifier = "my-project"

[bundles.ui-assets]
version = "1.0.0"
git = "https://github.com/acme/ui-assets.git"
`)
	_, err := install.Command{
		ManifestPath: filepath.Join(dir, "bundle.toml"),
		Gateway:      gw,
	}.Run(fake.CtxWithNilPrinter())
	require.NoError(t, err)
	return dir
}

func TestRunPushesDirtyLeafWithOneCommit(t *testing.T) {
	gw := testutil.NewFakeGateway()
	dir := setupLeaf(t, gw)
	installDir := filepath.Join(dir, ".fpm", "ui-assets")

	// user edits two files in the installed bundle
	require.NoError(t, os.WriteFile(
		filepath.Join(installDir, "assets", "icons", "a.svg"), []byte("<svg>edited</svg>"), 0600))
	require.NoError(t, os.WriteFile(
		filepath.Join(installDir, "assets", "icons", "b.svg"), []byte("<svg>new</svg>"), 0600))

	summary, err := push.Command{
		ManifestPath: filepath.Join(dir, "bundle.toml"),
		Gateway:      gw,
	}.Run(fake.CtxWithNilPrinter())
	require.NoError(t, err)
	require.False(t, summary.AnyFailed())
	require.Len(t, summary.Pushed, 1)

	repo := gw.Repos["github.com/acme/ui-assets"]
	require.Len(t, repo.CommitMessages, 1)
	assert.Equal(t, push.DefaultMessage, repo.CommitMessages[0])

	newSHA := repo.Heads["main"]
	assert.NotEqual(t, assetsSHA, newSHA)
	assert.Equal(t, "<svg>edited</svg>", repo.Trees[newSHA]["assets/icons/a.svg"])
	assert.Equal(t, "<svg>new</svg>", repo.Trees[newSHA]["assets/icons/b.svg"])

	mk := marker.Read(installDir)
	require.NotNil(t, mk)
	assert.Equal(t, newSHA, mk.Commit)
}

func TestRunSkipsCleanBundles(t *testing.T) {
	gw := testutil.NewFakeGateway()
	dir := setupLeaf(t, gw)

	summary, err := push.Command{
		ManifestPath: filepath.Join(dir, "bundle.toml"),
		Gateway:      gw,
	}.Run(fake.CtxWithNilPrinter())
	require.NoError(t, err)
	assert.Empty(t, summary.Pushed)
	assert.Len(t, summary.Skipped, 1)
	assert.Equal(t, 0, gw.OpCount("commit"))
	assert.Equal(t, 0, gw.OpCount("push"))
}

func TestRunUsesCallerMessage(t *testing.T) {
	gw := testutil.NewFakeGateway()
	dir := setupLeaf(t, gw)
	installDir := filepath.Join(dir, ".fpm", "ui-assets")
	require.NoError(t, os.WriteFile(
		filepath.Join(installDir, "assets", "icons", "a.svg"), []byte("x"), 0600))

	_, err := push.Command{
		ManifestPath: filepath.Join(dir, "bundle.toml"),
		Gateway:      gw,
		Message:      "Tweak icon color",
	}.Run(fake.CtxWithNilPrinter())
	require.NoError(t, err)

	repo := gw.Repos["github.com/acme/ui-assets"]
	require.Len(t, repo.CommitMessages, 1)
	assert.Equal(t, "Tweak icon color", repo.CommitMessages[0])
}

// setupNested installs parent -> child so that push ordering and marker
// propagation can be observed.
func setupNested(t *testing.T, gw *testutil.FakeGateway) string {
	t.Helper()
	gw.AddRepo("https://github.com/acme/ui-components.git").
		Commit(uiSHA, map[string]string{
			"bundle.toml": `
fpm_version = "0.3.0"
identifier = "ui-components"

[bundles.base-styles]
version = "main"
git = "https://github.com/acme/base-styles.git"
`,
			"button.css": ".button {}",
		}).
		Branch("main", uiSHA)
	gw.AddRepo("https://github.com/acme/base-styles.git").
		Commit(stylesSHA, map[string]string{"base.css": "body {}"}).
		Branch("main", stylesSHA)

	dir := t.TempDir()
	testutil.WriteManifest(t, dir, `
fpm_version = "0.3.0"
identifier = "my-project"

[bundles.ui-components]
version = "main"
git = "https://github.com/acme/ui-components.git"
`)
	_, err := install.Command{
		ManifestPath: filepath.Join(dir, "bundle.toml"),
		Gateway:      gw,
	}.Run(fake.CtxWithNilPrinter())
	require.NoError(t, err)
	return dir
}

func TestRunPostOrderPropagatesChildSHA(t *testing.T) {
	gw := testutil.NewFakeGateway()
	dir := setupNested(t, gw)
	childDir := filepath.Join(dir, ".fpm", "ui-components", ".fpm", "base-styles")

	// edit only the child
	require.NoError(t, os.WriteFile(filepath.Join(childDir, "base.css"),
		[]byte("body { margin: 0 }"), 0600))

	summary, err := push.Command{
		ManifestPath: filepath.Join(dir, "bundle.toml"),
		Gateway:      gw,
	}.Run(fake.CtxWithNilPrinter())
	require.NoError(t, err)
	require.False(t, summary.AnyFailed())

	// both pushed: the child for its edit, the parent for the bumped marker
	require.Len(t, summary.Pushed, 2)
	assert.Equal(t, "ui-components/base-styles", string(summary.Pushed[0]))
	assert.Equal(t, "ui-components", string(summary.Pushed[1]))

	styles := gw.Repos["github.com/acme/base-styles"]
	components := gw.Repos["github.com/acme/ui-components"]
	require.Len(t, styles.CommitMessages, 1)
	require.Len(t, components.CommitMessages, 1)

	// the child push strictly precedes the parent push
	var order []string
	for _, op := range gw.Ops {
		if op == "push github.com/acme/base-styles origin main" ||
			op == "push github.com/acme/ui-components origin main" {
			order = append(order, op)
		}
	}
	require.Len(t, order, 2)
	assert.Contains(t, order[0], "base-styles")

	// the parent commit pins the child's new SHA via the nested marker
	childSHA := styles.Heads["main"]
	parentTree := components.Trees[components.Heads["main"]]
	markerContent := parentTree[".fpm/base-styles/.fpm-sync.yaml"]
	assert.Contains(t, markerContent, childSHA)
}

func TestRunRestrictToUnknownBundleFails(t *testing.T) {
	gw := testutil.NewFakeGateway()
	dir := setupLeaf(t, gw)

	_, err := push.Command{
		ManifestPath: filepath.Join(dir, "bundle.toml"),
		Gateway:      gw,
		Bundle:       "nope",
	}.Run(fake.CtxWithNilPrinter())
	require.Error(t, err)
	assert.Equal(t, errors.Usage, errors.KindOf(err))
}

func TestRunRestrictToSingleBundle(t *testing.T) {
	gw := testutil.NewFakeGateway()
	dir := setupLeaf(t, gw)
	gw.AddRepo("https://github.com/acme/other.git").
		Commit(stylesSHA, map[string]string{"other.txt": "o"}).
		Branch("main", stylesSHA)
	testutil.WriteManifest(t, dir, `
fpm_version = "0.3.0"
identifier = "my-project"

[bundles.other]
version = "main"
git = "https://github.com/acme/other.git"

[bundles.ui-assets]
version = "1.0.0"
git = "https://github.com/acme/ui-assets.git"
`)
	_, err := install.Command{
		ManifestPath: filepath.Join(dir, "bundle.toml"),
		Gateway:      gw,
	}.Run(fake.CtxWithNilPrinter())
	require.NoError(t, err)

	// dirty both, push only ui-assets
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, ".fpm", "other", "other.txt"), []byte("edited"), 0600))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, ".fpm", "ui-assets", "assets", "icons", "a.svg"), []byte("edited"), 0600))

	summary, err := push.Command{
		ManifestPath: filepath.Join(dir, "bundle.toml"),
		Gateway:      gw,
		Bundle:       "ui-assets",
	}.Run(fake.CtxWithNilPrinter())
	require.NoError(t, err)
	require.Len(t, summary.Pushed, 1)
	assert.Equal(t, "ui-assets", string(summary.Pushed[0]))
	assert.Empty(t, gw.Repos["github.com/acme/other"].CommitMessages)
}

func TestRunResumesAfterFailedPush(t *testing.T) {
	gw := testutil.NewFakeGateway()
	dir := setupLeaf(t, gw)
	installDir := filepath.Join(dir, ".fpm", "ui-assets")
	require.NoError(t, os.WriteFile(
		filepath.Join(installDir, "assets", "icons", "a.svg"), []byte("edited"), 0600))

	repo := gw.Repos["github.com/acme/ui-assets"]
	repo.RejectPush = true

	cmd := push.Command{
		ManifestPath: filepath.Join(dir, "bundle.toml"),
		Gateway:      gw,
	}
	summary, err := cmd.Run(fake.CtxWithNilPrinter())
	require.NoError(t, err)
	require.True(t, summary.AnyFailed())
	// committed locally, not pushed
	assert.Equal(t, 1, gw.OpCount("commit"))
	assert.Empty(t, repo.CommitMessages)

	// the next pass resumes from committed without a second commit
	repo.RejectPush = false
	summary, err = cmd.Run(fake.CtxWithNilPrinter())
	require.NoError(t, err)
	require.False(t, summary.AnyFailed())
	require.Len(t, summary.Pushed, 1)
	assert.Equal(t, 1, gw.OpCount("commit"))
	require.Len(t, repo.CommitMessages, 1)

	mk := marker.Read(installDir)
	require.NotNil(t, mk)
	assert.Equal(t, repo.Heads["main"], mk.Commit)
}

func TestRunSkipsNotInstalledBundles(t *testing.T) {
	gw := testutil.NewFakeGateway()
	gw.AddRepo("https://github.com/acme/lib.git").
		Commit(assetsSHA, map[string]string{"lib.txt": "v1"}).
		Branch("main", assetsSHA)

	dir := t.TempDir()
	testutil.WriteManifest(t, dir, `
fpm_version = "0.3.0"
identifier = "my-project"

[bundles.lib]
version = "main"
git = "https://github.com/acme/lib.git"
`)

	summary, err := push.Command{
		ManifestPath: filepath.Join(dir, "bundle.toml"),
		Gateway:      gw,
	}.Run(fake.CtxWithNilPrinter())
	require.NoError(t, err)
	assert.Empty(t, summary.Pushed)
	assert.Len(t, summary.Skipped, 1)
	assert.Empty(t, gw.Ops)
}
