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
package engine

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"bennypowers.dev/idekit/compile"
)

// SurfaceEngine is the reference Engine: a line-level surface checker
// over Haskell-style modules. It understands module headers, imports
// and top-level bindings — enough to exercise every session operation
// and the whole worker protocol without embedding a real compiler.
type SurfaceEngine struct {
	cache  *compile.StringCache
	loaded map[string]map[string]string // module -> binder -> literal
	ran    bool                         // last compile generated code
}

// basePackages lists the import prefixes the checker treats as wired-in;
// packageFor maps them to the base package at baseVersion.
var basePackages = map[string]bool{
	"Prelude": true,
	"Data":    true,
	"Control": true,
	"System":  true,
	"Text":    true,
}

const baseVersion = "4.18.0.0"

var (
	moduleRe  = regexp.MustCompile(`^module\s+([A-Z][A-Za-z0-9_'.]*)\s*(?:\(.*\))?\s*where\s*$`)
	importRe  = regexp.MustCompile(`^import\s+(qualified\s+)?([A-Z][A-Za-z0-9_'.]*)\s*(?:as\s+([A-Z][A-Za-z0-9_'.]*))?`)
	bindingRe = regexp.MustCompile(`^([a-z_][A-Za-z0-9_']*)\s*=(.*)$`)
	intRe     = regexp.MustCompile(`^-?[0-9]+$`)
	stringRe  = regexp.MustCompile(`^"((?:[^"\\]|\\.)*)"$`)
	errorRe   = regexp.MustCompile(`^error\s+"((?:[^"\\]|\\.)*)"$`)
)

// NewSurfaceEngine builds a checker interning into cache. The cache is
// owned by the worker and grows across compiles so ids stay stable.
func NewSurfaceEngine(cache *compile.StringCache) *SurfaceEngine {
	return &SurfaceEngine{
		cache:  cache,
		loaded: make(map[string]map[string]string),
	}
}

// Compile loads all targets, reporting per-module progress in target
// order. A target containing a PANIC pragma makes the engine itself
// fail, exercising the worker's crash containment.
func (e *SurfaceEngine) Compile(ctx context.Context, req CompileRequest, hooks Hooks) (*compile.Computed, error) {
	result := compile.NewComputed()
	result.Cache = e.cache
	warnAll := hasOption(req.Options, "-Wall")

	loaded := make(map[string]map[string]string)
	for _, target := range req.Targets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if strings.Contains(string(target.Contents), "{-# PANIC") {
			panic(fmt.Sprintf("engine panic compiling %s", target.Path))
		}
		module := e.checkTarget(target, result, hooks, warnAll, loaded)
		if module != "" {
			hooks.module(module)
		}
	}

	sort.Strings(result.LoadedModules)
	e.loaded = loaded
	e.ran = req.GenerateCode
	return result, nil
}

// checkTarget analyses one file, appending diagnostics and metadata to
// result. Returns the module name, or "" when the header is missing.
func (e *SurfaceEngine) checkTarget(target Target, result *compile.Computed, hooks Hooks, warnAll bool, loaded map[string]map[string]string) string {
	report := func(d compile.Diagnostic) {
		result.Diagnostics = append(result.Diagnostics, d)
		hooks.diagnostic(d)
	}
	lines := strings.Split(string(target.Contents), "\n")

	module := ""
	info := &compile.ModuleInfo{}
	bindings := map[string]string{}
	binderLines := map[string]int{}
	failed := false

	for i, line := range lines {
		lineNo := i + 1
		trimmed := strings.TrimRight(line, " \t")
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}

		if m := moduleRe.FindStringSubmatch(trimmed); m != nil {
			module = m[1]
			continue
		}
		if module == "" {
			report(compile.SrcError(
				compile.KindError, target.Path, lineNo, 1, lineNo, len(line)+1,
				"parse error: missing module header"))
			return ""
		}
		if m := importRe.FindStringSubmatch(trimmed); m != nil {
			imp := compile.Import{
				Module:    e.cache.Intern(m[2]),
				Qualified: m[1] != "",
			}
			if m[3] != "" {
				imp.As = e.cache.Intern(m[3])
			}
			info.Imports = append(info.Imports, imp)
			if dep := e.packageFor(m[2]); dep != nil {
				info.PkgDeps = append(info.PkgDeps, *dep)
			}
			continue
		}
		if m := bindingRe.FindStringSubmatch(trimmed); m != nil {
			name, rhs := m[1], strings.TrimSpace(m[2])
			if rhs == "" {
				report(compile.SrcError(
					compile.KindError, target.Path, lineNo, len(trimmed), lineNo, len(trimmed)+1,
					"parse error: unexpected end of input"))
				failed = true
				continue
			}
			bindings[name] = rhs
			binderLines[name] = lineNo
			id := compile.IdInfo{
				Name:      e.cache.Intern(name),
				Type:      e.typeOf(rhs),
				DefinedIn: e.cache.Intern(module),
			}
			info.AutoCompletion = append(info.AutoCompletion, id)
			col := strings.Index(line, name) + 1
			span := compile.Span{
				StartLine: lineNo, StartCol: col,
				EndLine: lineNo, EndCol: col + len(name),
			}
			info.SpanInfo = append(info.SpanInfo, compile.SpanInfo{Span: span, Id: id})
			if id.Type != 0 {
				rhsCol := strings.LastIndex(line, rhs) + 1
				info.ExpTypes = append(info.ExpTypes, compile.TypeSpan{
					Span: compile.Span{
						StartLine: lineNo, StartCol: rhsCol,
						EndLine: lineNo, EndCol: rhsCol + len(rhs),
					},
					Type: id.Type,
				})
			}
		}
	}

	if module == "" {
		// Blank or comment-only file: nothing to load, nothing to report.
		return ""
	}

	for name := range bindings {
		sites := e.useSites(lines, name)
		info.UseSites = append(info.UseSites, compile.UseSite{
			Name:  e.cache.Intern(name),
			Sites: sites,
		})
		if warnAll && len(sites) <= 1 && name != "main" {
			line := binderLines[name]
			report(compile.SrcError(
				compile.KindWarning, target.Path, line, 1, line, len(name)+1,
				fmt.Sprintf("Defined but not used: %s", name)))
		}
	}
	sort.Slice(info.UseSites, func(i, j int) bool {
		return e.cache.Resolve(info.UseSites[i].Name) < e.cache.Resolve(info.UseSites[j].Name)
	})

	if failed {
		return module
	}
	result.LoadedModules = append(result.LoadedModules, module)
	result.Modules[module] = info
	loaded[module] = bindings
	return module
}

// packageFor resolves an imported module to a package dependency, or
// nil for modules expected to come from the project itself.
func (e *SurfaceEngine) packageFor(module string) *compile.PkgDep {
	prefix, _, _ := strings.Cut(module, ".")
	if !basePackages[prefix] {
		return nil
	}
	return &compile.PkgDep{
		Package: e.cache.Intern("base"),
		Version: e.cache.Intern(baseVersion),
	}
}

func (e *SurfaceEngine) typeOf(rhs string) compile.StringID {
	switch {
	case intRe.MatchString(rhs):
		return e.cache.Intern("Integer")
	case stringRe.MatchString(rhs):
		return e.cache.Intern("String")
	default:
		return 0
	}
}

// useSites finds word occurrences of name, including the definition.
func (e *SurfaceEngine) useSites(lines []string, name string) []compile.Span {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
	var sites []compile.Span
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		for _, loc := range re.FindAllStringIndex(line, -1) {
			sites = append(sites, compile.Span{
				StartLine: i + 1, StartCol: loc[0] + 1,
				EndLine: i + 1, EndCol: loc[1] + 1,
			})
		}
	}
	return sites
}

// Run executes a binding from the last compile. String bindings print
// their value; integer bindings print their digits; error bindings
// raise.
func (e *SurfaceEngine) Run(ctx context.Context, module, identifier string, env []string, output io.Writer) (compile.RunResult, error) {
	if !e.ran {
		return compile.RunResult{}, fmt.Errorf("%s.%s: compiled without code generation", module, identifier)
	}
	bindings, ok := e.loaded[module]
	if !ok {
		return compile.RunResult{}, fmt.Errorf("module %s not loaded", module)
	}
	rhs, ok := bindings[identifier]
	if !ok {
		return compile.RunResult{
			Status:  compile.RunException,
			Message: fmt.Sprintf("Not in scope: %s.%s", module, identifier),
		}, nil
	}
	if err := ctx.Err(); err != nil {
		return compile.RunResult{Status: compile.RunForceStopped}, nil
	}
	switch {
	case errorRe.MatchString(rhs):
		m := errorRe.FindStringSubmatch(rhs)
		return compile.RunResult{Status: compile.RunException, Message: m[1]}, nil
	case stringRe.MatchString(rhs):
		m := stringRe.FindStringSubmatch(rhs)
		fmt.Fprintln(output, m[1])
	default:
		fmt.Fprintln(output, rhs)
	}
	return compile.RunResult{Status: compile.RunCompleted}, nil
}

// Reset discards loaded state after a crash.
func (e *SurfaceEngine) Reset() {
	e.loaded = make(map[string]map[string]string)
	e.ran = false
}

func hasOption(options []string, want string) bool {
	for _, opt := range options {
		if opt == want {
			return true
		}
	}
	return false
}
