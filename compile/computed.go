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
package compile

import "sort"

// Span is a source region, 1-based, end-exclusive in columns.
type Span struct {
	StartLine int `json:"startline"`
	StartCol  int `json:"startcol"`
	EndLine   int `json:"endline"`
	EndCol    int `json:"endcol"`
}

// Import is one import of a module. Cyclic import graphs are fine here:
// entries reference the cache by id, so no ownership cycle exists.
type Import struct {
	Module    StringID `json:"module"`
	Qualified bool     `json:"qualified,omitempty"`
	As        StringID `json:"as,omitempty"`
}

// IdInfo describes an identifier: auto-completion candidates and
// span-to-identifier resolution both carry these.
type IdInfo struct {
	Name      StringID `json:"name"`
	Type      StringID `json:"type,omitempty"`
	DefinedIn StringID `json:"definedIn,omitempty"`
}

// SpanInfo maps a source span to the identifier it mentions.
type SpanInfo struct {
	Span Span   `json:"span"`
	Id   IdInfo `json:"id"`
}

// TypeSpan annotates an expression span with its type.
type TypeSpan struct {
	Span Span     `json:"span"`
	Type StringID `json:"type"`
}

// UseSite indexes the spans where an identifier is used.
type UseSite struct {
	Name  StringID `json:"name"`
	Sites []Span   `json:"sites"`
}

// PkgDep records an imported package, with version when known.
type PkgDep struct {
	Package StringID `json:"package"`
	Version StringID `json:"version,omitempty"`
}

// ModuleInfo aggregates the per-module metadata of one compile.
type ModuleInfo struct {
	Imports        []Import   `json:"imports,omitempty"`
	AutoCompletion []IdInfo   `json:"autoCompletion,omitempty"`
	SpanInfo       []SpanInfo `json:"spanInfo,omitempty"`
	ExpTypes       []TypeSpan `json:"expTypes,omitempty"`
	UseSites       []UseSite  `json:"useSites,omitempty"`
	PkgDeps        []PkgDep   `json:"pkgDeps,omitempty"`
}

// Computed is the aggregated output of the last successful compile
// cycle. The session replaces it wholesale on every compile completion
// and clears it on any mutation.
type Computed struct {
	Diagnostics   []Diagnostic
	LoadedModules []string
	Cache         *StringCache
	Modules       map[string]*ModuleInfo
}

// NewComputed returns an empty result with a fresh cache.
func NewComputed() *Computed {
	return &Computed{
		Cache:   NewStringCache(),
		Modules: make(map[string]*ModuleInfo),
	}
}

// Module returns the metadata for a loaded module, or nil.
func (c *Computed) Module(name string) *ModuleInfo {
	return c.Modules[name]
}

// Delta is the wire form of a compile result: additive relative to the
// prior Computed. Diagnostics and loaded modules are small and ship
// whole; module metadata ships per-module (changed modules replace
// their entry, vanished modules are listed in Removed), and the cache
// ships only newly interned strings.
type Delta struct {
	Diagnostics   []Diagnostic          `json:"diagnostics"`
	LoadedModules []string              `json:"loadedModules"`
	CacheAdded    map[StringID]string   `json:"cacheAdded,omitempty"`
	Updated       map[string]ModuleInfo `json:"updated,omitempty"`
	Removed       []string              `json:"removed,omitempty"`
}

// Apply merges a delta into the prior result, returning the new
// Computed. prev may be nil for the first compile.
func (d Delta) Apply(prev *Computed) (*Computed, error) {
	next := NewComputed()
	if prev != nil {
		next.Cache = prev.Cache.Clone()
		for name, info := range prev.Modules {
			next.Modules[name] = info
		}
	}
	if err := next.Cache.Insert(d.CacheAdded); err != nil {
		return nil, err
	}
	for _, name := range d.Removed {
		delete(next.Modules, name)
	}
	for name, info := range d.Updated {
		clone := info
		next.Modules[name] = &clone
	}
	next.Diagnostics = append([]Diagnostic(nil), d.Diagnostics...)
	next.LoadedModules = append([]string(nil), d.LoadedModules...)
	sort.Strings(next.LoadedModules)
	return next, nil
}

// Diff computes the delta from prev to next. prevCacheLen is the cache
// length observed before next's compile interned anything; next's cache
// must be the same arena grown in place, which is how the worker keeps
// ids stable across compiles.
func Diff(prev *Computed, next *Computed, prevCacheLen int) Delta {
	delta := Delta{
		Diagnostics:   next.Diagnostics,
		LoadedModules: next.LoadedModules,
		CacheAdded:    next.Cache.Added(prevCacheLen),
	}
	for name, info := range next.Modules {
		if prev == nil || prev.Modules[name] == nil || !moduleInfoEqual(*prev.Modules[name], *info) {
			if delta.Updated == nil {
				delta.Updated = make(map[string]ModuleInfo)
			}
			delta.Updated[name] = *info
		}
	}
	if prev != nil {
		for name := range prev.Modules {
			if next.Modules[name] == nil {
				delta.Removed = append(delta.Removed, name)
			}
		}
		sort.Strings(delta.Removed)
	}
	return delta
}

func moduleInfoEqual(a, b ModuleInfo) bool {
	if len(a.Imports) != len(b.Imports) ||
		len(a.AutoCompletion) != len(b.AutoCompletion) ||
		len(a.SpanInfo) != len(b.SpanInfo) ||
		len(a.ExpTypes) != len(b.ExpTypes) ||
		len(a.UseSites) != len(b.UseSites) ||
		len(a.PkgDeps) != len(b.PkgDeps) {
		return false
	}
	for i := range a.Imports {
		if a.Imports[i] != b.Imports[i] {
			return false
		}
	}
	for i := range a.AutoCompletion {
		if a.AutoCompletion[i] != b.AutoCompletion[i] {
			return false
		}
	}
	for i := range a.SpanInfo {
		if a.SpanInfo[i] != b.SpanInfo[i] {
			return false
		}
	}
	for i := range a.ExpTypes {
		if a.ExpTypes[i] != b.ExpTypes[i] {
			return false
		}
	}
	for i := range a.UseSites {
		if a.UseSites[i].Name != b.UseSites[i].Name ||
			len(a.UseSites[i].Sites) != len(b.UseSites[i].Sites) {
			return false
		}
		for j := range a.UseSites[i].Sites {
			if a.UseSites[i].Sites[j] != b.UseSites[i].Sites[j] {
				return false
			}
		}
	}
	for i := range a.PkgDeps {
		if a.PkgDeps[i] != b.PkgDeps[i] {
			return false
		}
	}
	return true
}
