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
	"bytes"
	"fmt"
	"path"

	"bennypowers.dev/idekit/compile"
	"bennypowers.dev/idekit/internal/logging"
	"bennypowers.dev/idekit/internal/platform"
)

// Driver prepares the package dir and runs the backend with its output
// captured to log files under the dist dir. The progress callback fires
// on entry and after each of: dependency resolution, configure, and
// build or haddock.
type Driver struct {
	FS       platform.FileSystem
	Backend  Backend
	DistDir  string
	Options  Options
	Progress func(compile.Progress)
}

// BuildExecutable configures and builds one executable per target.
// Returns the build's exit code: 0 on success, 1 when the backend
// fails (the dist log files hold the tool output).
func (d *Driver) BuildExecutable(comp *compile.Computed, targets []string, sourcesDir string) (int, error) {
	progress := d.report(compile.NewProgress("starting build"))

	desc, err := Synthesize(comp, targets, sourcesDir, d.DistDir)
	if err != nil {
		return 1, err
	}
	progress = d.report(progress.Update("resolved dependencies"))

	if err := d.prepare(desc); err != nil {
		return 1, err
	}

	code, err := d.stage(desc, "build", func(desc *PackageDesc, stdout, stderr *bytes.Buffer) error {
		if err := d.Backend.Configure(desc, d.Options, stdout, stderr); err != nil {
			return err
		}
		progress = d.report(progress.Update("configured"))
		if err := d.Backend.Build(desc, d.Options, stdout, stderr); err != nil {
			return err
		}
		progress = d.report(progress.Update("built"))
		return nil
	})
	return code, err
}

// BuildDoc configures and generates documentation for the loaded
// modules, landing under the dist doc dir.
func (d *Driver) BuildDoc(comp *compile.Computed, sourcesDir string) (int, error) {
	progress := d.report(compile.NewProgress("starting doc build"))

	desc, err := Synthesize(comp, nil, sourcesDir, d.DistDir)
	if err != nil {
		return 1, err
	}
	progress = d.report(progress.Update("resolved dependencies"))

	if err := d.prepare(desc); err != nil {
		return 1, err
	}

	code, err := d.stage(desc, "doc", func(desc *PackageDesc, stdout, stderr *bytes.Buffer) error {
		if err := d.Backend.Configure(desc, d.Options, stdout, stderr); err != nil {
			return err
		}
		progress = d.report(progress.Update("configured"))
		if err := d.Backend.Haddock(desc, d.Options, stdout, stderr); err != nil {
			return err
		}
		progress = d.report(progress.Update("documented"))
		return nil
	})
	return code, err
}

// prepare writes the package description and any wrapper Main files
// into the package dir.
func (d *Driver) prepare(desc *PackageDesc) error {
	if err := d.FS.MkdirAll(desc.PkgDir, 0755); err != nil {
		return fmt.Errorf("create package dir: %w", err)
	}
	cabalPath := path.Join(desc.PkgDir, desc.Name+".cabal")
	if err := d.FS.WriteFile(cabalPath, []byte(desc.cabalSource()), 0644); err != nil {
		return fmt.Errorf("write package description: %w", err)
	}
	for _, exe := range desc.Executables {
		if exe.Module == "Main" {
			continue
		}
		wrapper := path.Join(desc.PkgDir, exe.MainIs)
		if err := d.FS.WriteFile(wrapper, []byte(wrapperSource(exe.Module)), 0644); err != nil {
			return fmt.Errorf("write wrapper for %s: %w", exe.Module, err)
		}
	}
	return nil
}

// stage runs fn with stdout/stderr captured, then lands both logs under
// dist/build regardless of how fn exits. The deferred write guarantees
// logs survive backend panics, and buffered capture cannot leak
// descriptors.
func (d *Driver) stage(desc *PackageDesc, name string, fn func(desc *PackageDesc, stdout, stderr *bytes.Buffer) error) (code int, err error) {
	var stdout, stderr bytes.Buffer

	logDir := path.Join(d.DistDir, "build")
	defer func() {
		if mkErr := d.FS.MkdirAll(logDir, 0755); mkErr != nil {
			logging.Warning("build logs lost: %v", mkErr)
			return
		}
		outPath := path.Join(logDir, name+".stdout")
		errPath := path.Join(logDir, name+".stderr")
		if wErr := d.FS.WriteFile(outPath, stdout.Bytes(), 0644); wErr != nil {
			logging.Warning("write %s: %v", outPath, wErr)
		}
		if wErr := d.FS.WriteFile(errPath, stderr.Bytes(), 0644); wErr != nil {
			logging.Warning("write %s: %v", errPath, wErr)
		}
	}()

	if err := fn(desc, &stdout, &stderr); err != nil {
		logging.Debug("backend failed: %v", err)
		fmt.Fprintf(&stderr, "%v\n", err)
		return 1, nil
	}
	return 0, nil
}

func (d *Driver) report(p compile.Progress) compile.Progress {
	if d.Progress != nil {
		d.Progress(p)
	}
	return p
}
