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
package session

import (
	"path/filepath"

	"bennypowers.dev/idekit/compile"
	"bennypowers.dev/idekit/internal/logging"
	"bennypowers.dev/idekit/internal/platform"
	"bennypowers.dev/idekit/pkgbuild"
)

// BuildOptions tune executable and documentation builds.
type BuildOptions struct {
	// DynamicLink builds dynamic executables and shared libraries.
	DynamicLink bool
	// Progress observes the build stages; nil logs at debug level.
	Progress func(compile.Progress)
}

// BuildExecutable synthesises a package from the last compile and
// drives configure+build for the given target modules. Returns the
// build's exit code. Builds run under the exclusive gate, so no
// shared-slot session work (compiles, runs, disk reads) interleaves
// with them.
func (s *Session) BuildExecutable(targets []string, opts BuildOptions) (int, error) {
	return s.build(opts, func(d *pkgbuild.Driver, comp *compile.Computed) (int, error) {
		return d.BuildExecutable(comp, targets, s.c.config.SourcesDir)
	})
}

// BuildDoc generates documentation for the loaded modules under the
// session's dist doc dir. Returns the build's exit code.
func (s *Session) BuildDoc(opts BuildOptions) (int, error) {
	return s.build(opts, func(d *pkgbuild.Driver, comp *compile.Computed) (int, error) {
		return d.BuildDoc(comp, s.c.config.SourcesDir)
	})
}

func (s *Session) build(opts BuildOptions, fn func(*pkgbuild.Driver, *compile.Computed) (int, error)) (int, error) {
	comp, err := s.getComputed()
	if err != nil {
		return 1, err
	}

	progress := opts.Progress
	if progress == nil {
		progress = func(p compile.Progress) {
			logging.Debug("session %s: build step %d: %s", s.c.id, p.Step, p.Message)
		}
	}
	driver := &pkgbuild.Driver{
		FS:      s.c.fs,
		Backend: &pkgbuild.ExecBackend{ExtraPath: s.c.config.ExtraPathDirs},
		DistDir: filepath.Join(s.c.config.TempDir, "dist"),
		Options: pkgbuild.Options{
			UserInstall: true,
			DynamicLink: opts.DynamicLink,
		},
		Progress: progress,
	}

	var code int
	platform.ProcessGate().Exclusive(func() {
		code, err = fn(driver, comp)
	})
	return code, err
}
