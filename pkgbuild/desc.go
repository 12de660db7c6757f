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

// Package pkgbuild synthesises a package description from the last
// compile's results and drives the external configure+build facility
// for executables and documentation.
package pkgbuild

import (
	"fmt"
	"sort"
	"strings"

	"bennypowers.dev/idekit/compile"
)

// PackageDesc is the in-memory package description synthesised for one
// build: a single library exposing the loaded modules, plus one
// executable per requested target.
type PackageDesc struct {
	Name           string
	Version        string
	SourcesDir     string
	PkgDir         string
	ExposedModules []string
	Executables    []Executable
	Dependencies   []Dependency
}

// Executable is one requested build target.
type Executable struct {
	// Name is the target module's name, lowercased with dots turned into
	// dashes for the artifact.
	Name string
	// Module is the module whose main is invoked.
	Module string
	// MainIs is the main-is path: the module file itself for Main,
	// otherwise a generated wrapper under the dist dir.
	MainIs string
}

// Dependency is an external package requirement. Version "" means
// unversioned; otherwise the dependency is pinned.
type Dependency struct {
	Package string
	Version string
}

// Synthesize builds the package description for the given computed
// result: name main, version 1.0, loaded modules exposed, external
// dependencies derived from the per-module package deps.
func Synthesize(comp *compile.Computed, targets []string, sourcesDir, distDir string) (*PackageDesc, error) {
	desc := &PackageDesc{
		Name:           "main",
		Version:        "1.0",
		SourcesDir:     sourcesDir,
		PkgDir:         distDir + "/pkg",
		ExposedModules: append([]string(nil), comp.LoadedModules...),
	}

	loaded := make(map[string]bool, len(comp.LoadedModules))
	for _, m := range comp.LoadedModules {
		loaded[m] = true
	}
	for _, target := range targets {
		if !loaded[target] {
			return nil, fmt.Errorf("build target %q is not a loaded module", target)
		}
		exe := Executable{
			Name:   strings.ToLower(strings.ReplaceAll(target, ".", "-")),
			Module: target,
		}
		if target == "Main" {
			exe.MainIs = "Main.hs"
		} else {
			exe.MainIs = wrapperName(target)
		}
		desc.Executables = append(desc.Executables, exe)
	}

	versions := make(map[string]string)
	for _, info := range comp.Modules {
		for _, dep := range info.PkgDeps {
			pkg := comp.Cache.Resolve(dep.Package)
			if pkg == "" {
				continue
			}
			if v := comp.Cache.Resolve(dep.Version); v != "" {
				versions[pkg] = v
			} else if _, seen := versions[pkg]; !seen {
				versions[pkg] = ""
			}
		}
	}
	for pkg, version := range versions {
		desc.Dependencies = append(desc.Dependencies, Dependency{Package: pkg, Version: version})
	}
	sort.Slice(desc.Dependencies, func(i, j int) bool {
		return desc.Dependencies[i].Package < desc.Dependencies[j].Package
	})

	return desc, nil
}

// wrapperName is the generated main-is file for a non-Main target.
func wrapperName(module string) string {
	return strings.ReplaceAll(module, ".", "-") + "-Main.hs"
}

// wrapperSource is the generated Main importing the target module and
// invoking its main.
func wrapperSource(module string) string {
	return fmt.Sprintf("module Main where\n\nimport qualified %s\n\nmain = %s.main\n", module, module)
}

// cabalSource renders the description in package-description syntax
// for the external build tool.
func (desc *PackageDesc) cabalSource() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cabal-version: 2.4\n")
	fmt.Fprintf(&b, "name: %s\n", desc.Name)
	fmt.Fprintf(&b, "version: %s\n", desc.Version)
	fmt.Fprintf(&b, "build-type: Simple\n\n")

	deps := make([]string, 0, len(desc.Dependencies))
	for _, dep := range desc.Dependencies {
		if dep.Version == "" {
			deps = append(deps, dep.Package)
		} else {
			deps = append(deps, fmt.Sprintf("%s ==%s", dep.Package, dep.Version))
		}
	}
	buildDepends := strings.Join(deps, ", ")

	fmt.Fprintf(&b, "library\n")
	if len(desc.ExposedModules) > 0 {
		fmt.Fprintf(&b, "  exposed-modules: %s\n", strings.Join(desc.ExposedModules, ", "))
	}
	fmt.Fprintf(&b, "  hs-source-dirs: %s\n", desc.SourcesDir)
	if buildDepends != "" {
		fmt.Fprintf(&b, "  build-depends: %s\n", buildDepends)
	}

	for _, exe := range desc.Executables {
		fmt.Fprintf(&b, "\nexecutable %s\n", exe.Name)
		fmt.Fprintf(&b, "  main-is: %s\n", exe.MainIs)
		if exe.Module == "Main" {
			fmt.Fprintf(&b, "  hs-source-dirs: %s\n", desc.SourcesDir)
		} else {
			fmt.Fprintf(&b, "  hs-source-dirs: %s, %s\n", desc.PkgDir, desc.SourcesDir)
		}
		if buildDepends != "" {
			fmt.Fprintf(&b, "  build-depends: %s\n", buildDepends)
		}
	}
	return b.String()
}
