/*
Copyright © 2025 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package engine defines the compiler engine boundary. The session and
// worker layers treat the compiler as opaque: load a set of targets
// under options and report diagnostics and module metadata, or execute
// a named entry point. SurfaceEngine is the in-tree reference
// implementation; deployments embed a real compiler behind the same
// interface.
package engine

import (
	"context"
	"io"

	"bennypowers.dev/idekit/compile"
)

// Target is one source file handed to the engine: its session-relative
// path and full contents. The worker resolves disk files and virtual
// overlays before the engine sees them.
type Target struct {
	Path     string
	Contents []byte
}

// Hooks observe a compile as it happens. OnModule fires once per module
// in load order; OnDiagnostic fires as diagnostics are collected, so
// the caller retains them even if the engine dies before returning.
// Either field may be nil.
type Hooks struct {
	OnModule     func(module string)
	OnDiagnostic func(d compile.Diagnostic)
}

func (h Hooks) module(name string) {
	if h.OnModule != nil {
		h.OnModule(name)
	}
}

func (h Hooks) diagnostic(d compile.Diagnostic) {
	if h.OnDiagnostic != nil {
		h.OnDiagnostic(d)
	}
}

// CompileRequest carries one compile cycle's inputs.
type CompileRequest struct {
	Targets      []Target
	Options      []string
	GenerateCode bool
}

// Engine is the compiler instance owned by the worker process.
//
// Compile reports user-code problems as diagnostics inside the returned
// Computed; a non-nil error (or a panic) means the engine itself failed
// and must be Reset before the next request.
type Engine interface {
	Compile(ctx context.Context, req CompileRequest, hooks Hooks) (*compile.Computed, error)

	// Run executes module.identifier from the last code-generating
	// compile, streaming its stdout to output. The env overlay is in
	// "NAME=value" form, already resolved by the caller.
	Run(ctx context.Context, module, identifier string, env []string, output io.Writer) (compile.RunResult, error)

	// Reset discards engine state after a crash so the next request
	// starts fresh.
	Reset()
}
