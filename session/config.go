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
	"strings"

	"github.com/adrg/xdg"
)

// Config describes one session's on-disk layout and compiler setup.
type Config struct {
	// SourcesDir is where the compiler reads source modules from,
	// overlaid by the virtual file store.
	SourcesDir string `mapstructure:"sourcesDir" yaml:"sourcesDir"`
	// WorkingDir holds interface files and other intermediates.
	WorkingDir string `mapstructure:"workingDir" yaml:"workingDir"`
	// DataDir is the runtime working directory for executed programs.
	DataDir string `mapstructure:"dataDir" yaml:"dataDir"`
	// TempDir holds scratch files, build logs and docs.
	TempDir string `mapstructure:"tempDir" yaml:"tempDir"`

	// PackageDBStack is the compiler's package database stack.
	PackageDBStack []string `mapstructure:"packageDbStack" yaml:"packageDbStack"`
	// ExtraPathDirs extends the search path for tools invoked by builds.
	ExtraPathDirs []string `mapstructure:"extraPathDirs" yaml:"extraPathDirs"`
	// IncludeDirs are include roots relative to the sources dir.
	IncludeDirs []string `mapstructure:"includeDirs" yaml:"includeDirs"`
	// DeleteTempFiles removes TempDir contents on shutdown.
	DeleteTempFiles bool `mapstructure:"deleteTempFiles" yaml:"deleteTempFiles"`
	// StaticOptions is the initial compiler option set. Static options
	// boot the worker; the leftover dynamic ones seed the first compile.
	StaticOptions []string `mapstructure:"staticOptions" yaml:"staticOptions"`
}

// withDefaults fills unset directories under the user cache, keyed by
// the session id so concurrent sessions never collide.
func (c Config) withDefaults(id string) Config {
	root := filepath.Join(xdg.CacheHome, "idekit", id)
	if c.SourcesDir == "" {
		c.SourcesDir = filepath.Join(root, "src")
	}
	if c.WorkingDir == "" {
		c.WorkingDir = filepath.Join(root, "work")
	}
	if c.DataDir == "" {
		c.DataDir = filepath.Join(root, "data")
	}
	if c.TempDir == "" {
		c.TempDir = filepath.Join(root, "tmp")
	}
	return c
}

// staticConfigOptions renders the directory-shaped configuration into
// compiler options fixed for the worker's lifetime: the package
// database stack, the include roots (relative to the sources dir), and
// the intermediates directory.
func staticConfigOptions(c Config) []string {
	var opts []string
	for _, db := range c.PackageDBStack {
		opts = append(opts, "-package-db="+db)
	}
	for _, inc := range c.IncludeDirs {
		opts = append(opts, "-i"+filepath.Join(c.SourcesDir, inc))
	}
	opts = append(opts, "-odir="+c.WorkingDir, "-hidir="+c.WorkingDir)
	return opts
}

// splitOptions partitions the configured options into the static set
// the worker is booted with and the leftover dynamic set submitted with
// the first compile. Package and language flags must be fixed for the
// lifetime of the compiler instance; everything else may be replaced
// per compile.
func splitOptions(options []string) (static, dynamic []string) {
	for _, opt := range options {
		if strings.HasPrefix(opt, "-package") ||
			strings.HasPrefix(opt, "-X") ||
			strings.HasPrefix(opt, "-i") {
			static = append(static, opt)
		} else {
			dynamic = append(dynamic, opt)
		}
	}
	return static, dynamic
}
