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

// Package run wires the fpm commands into the root cobra command and maps
// engine errors onto user messages and exit codes.
package run

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	goerrors "github.com/go-errors/errors"
	"github.com/spf13/cobra"

	"github.com/fpmdev/fpm/internal/cmdinstall"
	"github.com/fpmdev/fpm/internal/cmdpublish"
	"github.com/fpmdev/fpm/internal/cmdpush"
	"github.com/fpmdev/fpm/internal/cmdstatus"
	"github.com/fpmdev/fpm/internal/errors"
	"github.com/fpmdev/fpm/internal/errors/resolver"
	"github.com/fpmdev/fpm/internal/manifest"
	"github.com/fpmdev/fpm/internal/printer"
	"github.com/fpmdev/fpm/internal/util/cmdutil"
)

// GetMain returns the root command for fpm.
func GetMain(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "fpm",
		Short:        "fpm manages bundles of files backed by git repositories",
		SilenceUsage: true,
		// We handle all errors in Main after return from cobra so we can
		// adjust the error message coming from libraries.
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := cmd.Flags().GetBool("help")
			if err != nil {
				return err
			}
			if h {
				return cmd.Help()
			}
			return cmd.Usage()
		},
	}

	// wire the global printer
	pr := printer.New(cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx = printer.WithContext(ctx, pr)

	cmd.InitDefaultHelpCmd()
	cmd.AddCommand(
		cmdinstall.NewCommand(ctx),
		cmdstatus.NewCommand(ctx),
		cmdpush.NewCommand(ctx),
		cmdpublish.NewCommand(ctx),
		versionCmd,
	)

	// enable stack traces
	cmd.PersistentFlags().BoolVar(&cmdutil.StackOnError, "stack-trace", false,
		"print a stack-trace on failure")

	if _, err := exec.LookPath("git"); err != nil {
		fmt.Fprintln(os.Stderr, "fpm requires that `git` is installed and on the PATH")
		os.Exit(1)
	}

	return cmd
}

// Main runs the fpm CLI and returns the process exit code.
func Main(ctx context.Context) int {
	cmd := GetMain(ctx)
	err := cmd.Execute()
	if err == nil {
		return 0
	}
	return handleErr(cmd, err)
}

// handleErr takes care of printing an error message for a given error.
func handleErr(cmd *cobra.Command, err error) int {
	if cmdutil.PrintErrorStacktrace() {
		var stackErr *goerrors.Error
		if errors.As(err, &stackErr) {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s", stackErr.Stack())
		}
	}

	if rr, found := resolver.ResolveError(err); found {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s\n", rr.Message)
		return rr.ExitCode
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	return 1
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of fpm",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", manifest.SchemaVersion)
	},
}
