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

// Package vfs implements the virtual file store: an in-memory overlay of
// logical path to byte content on top of the session's real sources and
// data directories.
//
// Precedence: an overlay entry always supersedes the file of the same
// path on disk. Disk files not shadowed by an overlay entry remain
// visible, and are re-read on every access, so out-of-band changes to
// unshadowed files show up at the next compile.
package vfs

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"sync"

	"bennypowers.dev/idekit/internal/platform"
)

// Kind says which directory an overlay entry belongs to.
type Kind int

const (
	// Source entries overlay the sources directory (compiler modules).
	Source Kind = iota
	// Data entries overlay the data directory (runtime files).
	Data
)

type entry struct {
	contents []byte
	kind     Kind
}

// Store maps logical paths to byte content, overlaying the sources and
// data directories. Overlay writes never touch the real filesystem.
//
// All access is serialised through a single lock. Contention is low:
// writes only happen inside updateFiles, reads inside queries and
// compile snapshots.
type Store struct {
	mu         sync.Mutex
	overlay    map[string]entry
	fs         platform.FileSystem
	sourcesDir string
	dataDir    string
}

// NewStore creates a store overlaying sourcesDir and dataDir on fsys.
func NewStore(fsys platform.FileSystem, sourcesDir, dataDir string) *Store {
	return &Store{
		overlay:    make(map[string]entry),
		fs:         fsys,
		sourcesDir: sourcesDir,
		dataDir:    dataDir,
	}
}

// Put stages contents for a logical path. The contents slice is copied;
// callers may reuse their buffer.
func (s *Store) Put(p string, contents []byte, kind Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(contents))
	copy(buf, contents)
	s.overlay[p] = entry{contents: buf, kind: kind}
}

// Delete removes a logical path from the overlay. Files on disk are not
// touched; deleting an unshadowed path is a no-op.
func (s *Store) Delete(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overlay, p)
}

// Read returns the bytes for a logical path: the overlay entry if
// present, otherwise the file under sourcesDir, otherwise under dataDir.
func (s *Store) Read(p string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.overlay[p]; ok {
		buf := make([]byte, len(e.contents))
		copy(buf, e.contents)
		return buf, nil
	}
	if b, err := s.fs.ReadFile(path.Join(s.sourcesDir, p)); err == nil {
		return b, nil
	}
	b, err := s.fs.ReadFile(path.Join(s.dataDir, p))
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", p, err)
	}
	return b, nil
}

// Contains reports whether p resolves to content, in the overlay or on
// disk.
func (s *Store) Contains(p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.overlay[p]; ok {
		return true
	}
	return s.fs.Exists(path.Join(s.sourcesDir, p)) ||
		s.fs.Exists(path.Join(s.dataDir, p))
}

// Snapshot returns a copy of the source-kind overlay, for shipping to
// the worker as part of a compile request. The returned map is the
// caller's to keep.
func (s *Store) Snapshot() map[string][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := make(map[string][]byte, len(s.overlay))
	for p, e := range s.overlay {
		if e.kind != Source {
			continue
		}
		buf := make([]byte, len(e.contents))
		copy(buf, e.contents)
		snap[p] = buf
	}
	return snap
}

// ListSources enumerates the union of source overlay paths and files
// under the sources directory, sorted. Overlay entries shadow same-path
// disk files rather than duplicating them.
func (s *Store) ListSources() ([]string, error) {
	return s.list(s.sourcesDir, Source)
}

// ListData enumerates the union of data overlay paths and files under
// the data directory, sorted.
func (s *Store) ListData() ([]string, error) {
	return s.list(s.dataDir, Data)
}

func (s *Store) list(root string, kind Kind) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(s.overlay))
	for p, e := range s.overlay {
		if e.kind == kind {
			seen[p] = true
		}
	}
	if err := s.walk(root, "", seen); err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

func (s *Store) walk(root, rel string, seen map[string]bool) error {
	dir := root
	if rel != "" {
		dir = path.Join(root, rel)
	}
	entries, err := s.fs.ReadDir(dir)
	if err != nil {
		if rel == "" {
			// A missing root directory means no disk files, not a failure.
			return nil
		}
		return fmt.Errorf("list %q: %w", dir, err)
	}
	for _, ent := range entries {
		p := ent.Name()
		if rel != "" {
			p = path.Join(rel, ent.Name())
		}
		if ent.IsDir() {
			if err := s.walk(root, p, seen); err != nil {
				return err
			}
			continue
		}
		if ent.Type()&fs.ModeType == 0 {
			seen[p] = true
		}
	}
	return nil
}
