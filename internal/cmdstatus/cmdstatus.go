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

// Package cmdstatus contains the status command.
package cmdstatus

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fpmdev/fpm/internal/gitutil"
	"github.com/fpmdev/fpm/internal/util/cmdutil"
	"github.com/fpmdev/fpm/internal/util/status"
)

// NewRunner returns a command runner.
func NewRunner(ctx context.Context) *Runner {
	r := &Runner{ctx: ctx}
	c := &cobra.Command{
		Use:   "status",
		Short: "Show whether each bundle matches its declared source",
		Long: `Report one line per bundle: synced when the installed content matches
the declared version, unsynced otherwise, and source for bundles that
declare an artifact root. Status is informational and always exits zero.`,
		RunE: r.runE,
	}
	c.Flags().StringVarP(&r.Status.ManifestPath, cmdutil.ManifestFlag, "m",
		cmdutil.DefaultManifestPath, "path to the bundle.toml manifest")
	c.Flags().BoolVar(&r.Status.Offline, "offline", false,
		"do not query remotes; compare against the refs cached at install time")
	c.Flags().BoolVar(&r.Status.Tree, "tree", false,
		"render the report as a dependency tree")
	r.Command = c
	return r
}

// NewCommand returns the cobra command for status.
func NewCommand(ctx context.Context) *cobra.Command {
	return NewRunner(ctx).Command
}

// Runner contains the run function.
type Runner struct {
	ctx     context.Context
	Status  status.Command
	Command *cobra.Command
}

func (r *Runner) runE(c *cobra.Command, _ []string) error {
	if r.Status.Gateway == nil {
		gw, err := gitutil.NewExec()
		if err != nil {
			fmt.Fprintf(c.ErrOrStderr(), "%v\n", err)
			return nil
		}
		r.Status.Gateway = gw
	}
	// status is informational: failures are reported, the exit code
	// stays zero.
	if _, err := r.Status.Run(r.ctx); err != nil {
		fmt.Fprintf(c.ErrOrStderr(), "%v\n", err)
	}
	return nil
}
