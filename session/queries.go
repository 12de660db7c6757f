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
	"fmt"

	"bennypowers.dev/idekit/compile"
	"bennypowers.dev/idekit/internal/platform"
	"bennypowers.dev/idekit/rpc"
	"bennypowers.dev/idekit/update"
	"bennypowers.dev/idekit/worker"
)

// getComputed guards the computed-backed queries: the handle must be
// current and a compile must have completed since the last mutation.
func (s *Session) getComputed() (*compile.Computed, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	if s.c.computed == nil {
		return nil, ErrNoComputedYet
	}
	return s.c.computed, nil
}

// moduleInfo resolves one module's metadata; unknown modules read as
// empty rather than failing, matching an empty query result.
func (s *Session) moduleInfo(module string) (*compile.ModuleInfo, error) {
	comp, err := s.getComputed()
	if err != nil {
		return nil, err
	}
	if info := comp.Module(module); info != nil {
		return info, nil
	}
	return &compile.ModuleInfo{}, nil
}

// GetSourceModule returns the current contents of a source module:
// the overlay entry if present, otherwise the file on disk. Disk reads
// hold a shared slot so they never interleave with an exclusive
// operation such as a build.
func (s *Session) GetSourceModule(module string) (contents []byte, err error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	platform.ProcessGate().Shared(func() {
		contents, err = s.c.store.Read(update.SourcePath(module))
	})
	return contents, err
}

// GetDataFile returns the current contents of a data file.
func (s *Session) GetDataFile(path string) (contents []byte, err error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	platform.ProcessGate().Shared(func() {
		contents, err = s.c.store.Read(path)
	})
	return contents, err
}

// GetSourceErrors returns the last compile's diagnostics.
func (s *Session) GetSourceErrors() ([]compile.Diagnostic, error) {
	comp, err := s.getComputed()
	if err != nil {
		return nil, err
	}
	return comp.Diagnostics, nil
}

// GetLoadedModules returns the modules the last compile loaded, sorted.
func (s *Session) GetLoadedModules() ([]string, error) {
	comp, err := s.getComputed()
	if err != nil {
		return nil, err
	}
	return comp.LoadedModules, nil
}

// GetImports returns a module's imports. Ids resolve through Resolve.
func (s *Session) GetImports(module string) ([]compile.Import, error) {
	info, err := s.moduleInfo(module)
	if err != nil {
		return nil, err
	}
	return info.Imports, nil
}

// GetAutoCompletion returns a module's completion candidates.
func (s *Session) GetAutoCompletion(module string) ([]compile.IdInfo, error) {
	info, err := s.moduleInfo(module)
	if err != nil {
		return nil, err
	}
	return info.AutoCompletion, nil
}

// GetSpanInfo returns a module's span-to-identifier mapping.
func (s *Session) GetSpanInfo(module string) ([]compile.SpanInfo, error) {
	info, err := s.moduleInfo(module)
	if err != nil {
		return nil, err
	}
	return info.SpanInfo, nil
}

// GetExpTypes returns a module's expression type annotations.
func (s *Session) GetExpTypes(module string) ([]compile.TypeSpan, error) {
	info, err := s.moduleInfo(module)
	if err != nil {
		return nil, err
	}
	return info.ExpTypes, nil
}

// GetUseSites returns a module's identifier use-site index.
func (s *Session) GetUseSites(module string) ([]compile.UseSite, error) {
	info, err := s.moduleInfo(module)
	if err != nil {
		return nil, err
	}
	return info.UseSites, nil
}

// Resolve maps a metadata string id through the computed result's
// explicit-sharing cache.
func (s *Session) Resolve(id compile.StringID) (string, error) {
	comp, err := s.getComputed()
	if err != nil {
		return "", err
	}
	return comp.Cache.Resolve(id), nil
}

// ListSourceModules enumerates the module names visible to the next
// compile: overlay entries plus unshadowed files on disk.
func (s *Session) ListSourceModules() ([]string, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	var paths []string
	var err error
	platform.ProcessGate().Shared(func() {
		paths, err = s.c.store.ListSources()
	})
	if err != nil {
		return nil, err
	}
	modules := make([]string, 0, len(paths))
	for _, p := range paths {
		if name, ok := update.ModuleName(p); ok {
			modules = append(modules, name)
		}
	}
	return modules, nil
}

// ListDataFiles enumerates the data files visible to executed programs.
func (s *Session) ListDataFiles() (files []string, err error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	platform.ProcessGate().Shared(func() {
		files, err = s.c.store.ListData()
	})
	return files, err
}

// WorkerStatus reports the worker's process vitals. It shares the RPC
// channel with compiles and runs, so it blocks while one is in flight.
func (s *Session) WorkerStatus() (*worker.Status, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	s.c.mu.Lock()
	if s.c.proc == nil {
		pending := s.c.pendingFailure
		s.c.mu.Unlock()
		if pending != nil {
			return nil, pending
		}
		return nil, rpc.ErrWorkerGone
	}
	proc := s.c.proc
	s.c.mu.Unlock()

	s.c.rpcMu.Lock()
	defer s.c.rpcMu.Unlock()
	var result worker.Result
	var err error
	platform.ProcessGate().Shared(func() {
		err = proc.client.Call(worker.Request{Status: &worker.StatusRequest{}}, nil, &result)
	})
	if err != nil {
		return nil, err
	}
	if result.Status == nil {
		return nil, fmt.Errorf("%w: status request answered without status", rpc.ErrProtocolViolation)
	}
	return result.Status, nil
}
