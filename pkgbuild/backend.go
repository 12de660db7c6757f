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
package pkgbuild

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Options tune one configure+build cycle.
type Options struct {
	// UserInstall registers into the user package environment.
	UserInstall bool
	// DynamicLink builds dynamic executables and shared libraries.
	DynamicLink bool
}

// Backend is the opaque configure+build facility. Implementations run
// with the package dir prepared (description and wrapper files written)
// and must send all tool output to the given writers.
type Backend interface {
	Configure(desc *PackageDesc, opts Options, stdout, stderr io.Writer) error
	Build(desc *PackageDesc, opts Options, stdout, stderr io.Writer) error
	Haddock(desc *PackageDesc, opts Options, stdout, stderr io.Writer) error
}

// ExecBackend drives an external cabal-style tool.
type ExecBackend struct {
	// Tool is the executable name, "cabal" by default.
	Tool string
	// ExtraPath prepends directories to the child's PATH.
	ExtraPath []string
}

func (b *ExecBackend) tool() string {
	if b.Tool == "" {
		return "cabal"
	}
	return b.Tool
}

func (b *ExecBackend) run(desc *PackageDesc, stdout, stderr io.Writer, args ...string) error {
	cmd := exec.Command(b.tool(), args...)
	cmd.Dir = desc.PkgDir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if len(b.ExtraPath) > 0 {
		cmd.Env = prependPath(b.ExtraPath)
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w", b.tool(), args[0], err)
	}
	return nil
}

func (b *ExecBackend) Configure(desc *PackageDesc, opts Options, stdout, stderr io.Writer) error {
	args := []string{"configure", "-v0"}
	if opts.UserInstall {
		args = append(args, "--user")
	}
	if opts.DynamicLink {
		args = append(args, "--enable-executable-dynamic", "--enable-shared")
	}
	return b.run(desc, stdout, stderr, args...)
}

func (b *ExecBackend) Build(desc *PackageDesc, opts Options, stdout, stderr io.Writer) error {
	return b.run(desc, stdout, stderr, "build", "-v0")
}

func (b *ExecBackend) Haddock(desc *PackageDesc, opts Options, stdout, stderr io.Writer) error {
	return b.run(desc, stdout, stderr, "haddock", "-v0")
}

// prependPath builds a child environment with extra dirs ahead of PATH.
func prependPath(extra []string) []string {
	env := os.Environ()
	prefix := strings.Join(extra, string(filepath.ListSeparator))
	for i, kv := range env {
		if name, value, ok := strings.Cut(kv, "="); ok && name == "PATH" {
			env[i] = "PATH=" + prefix + string(filepath.ListSeparator) + value
			return env
		}
	}
	return append(env, "PATH="+prefix)
}
