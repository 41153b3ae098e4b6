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

// Package cmdutil holds helpers shared by the fpm CLI commands.
package cmdutil

import (
	"os"

	goerrors "github.com/go-errors/errors"
)

const (
	// StackTraceOnErrors is the environment variable that enables stack
	// traces on failure, equivalent to the --stack-trace flag.
	StackTraceOnErrors = "COBRA_STACK_TRACE_ON_ERRORS"

	trueString = "true"

	// ManifestFlag is the long flag naming the manifest path.
	ManifestFlag = "manifest"

	// DefaultManifestPath is used when no manifest path is given.
	DefaultManifestPath = "bundle.toml"
)

// StackOnError if true, will print a stack trace on failure.
var StackOnError bool

func PrintErrorStacktrace() bool {
	e := os.Getenv(StackTraceOnErrors)
	if StackOnError || e == trueString || e == "1" {
		return true
	}
	return false
}

// WrapStack attaches a stack trace to err when stack traces are enabled,
// so the top-level error handler can print it.
func WrapStack(err error) error {
	if err == nil || !PrintErrorStacktrace() {
		return err
	}
	return goerrors.Wrap(err, 2)
}
