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

// Package worker hosts the compiler engine in the child process. It
// reads framed requests from stdin, answers with progress and result
// frames on stdout, and contains engine crashes so that one bad compile
// never kills the process.
package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"bennypowers.dev/idekit/compile"
	"bennypowers.dev/idekit/engine"
	"bennypowers.dev/idekit/internal/logging"
	"bennypowers.dev/idekit/internal/platform"
	"bennypowers.dev/idekit/rpc"
	"github.com/bmatcuk/doublestar/v4"
)

// sourcePattern matches the file extensions the embedded engine
// accepts.
const sourcePattern = "**/*.{hs,lhs}"

// Worker owns one engine instance and the request dispatch loop.
type Worker struct {
	Engine        engine.Engine
	FS            platform.FileSystem
	In            io.Reader
	Out           io.Writer
	StaticOptions []string
	TempDir       string

	cache   *compile.StringCache
	dynamic []string
	prev    *compile.Computed
	// shipped is the cache length the parent has already received.
	// Tracked separately from the cache itself: a crashed compile may
	// intern strings that never make it into a delta, and the next
	// successful delta has to close that gap.
	shipped int
	writeMu sync.Mutex
	started time.Time
}

// New builds a worker around the reference engine, speaking frames on
// in/out. Static compiler options come from the spawn argv and seed the
// engine for every compile; per-request options replace only the
// dynamic portion.
func New(in io.Reader, out io.Writer, staticOptions []string) *Worker {
	cache := compile.NewStringCache()
	return &Worker{
		Engine:        engine.NewSurfaceEngine(cache),
		FS:            platform.NewOSFileSystem(),
		In:            in,
		Out:           out,
		StaticOptions: staticOptions,
		cache:         cache,
		started:       time.Now(),
	}
}

type frameOrErr struct {
	frame rpc.Frame
	err   error
}

// Serve runs the dispatch loop until the parent shuts the worker down
// or the stream ends. A protocol violation is fatal: the worker exits
// and the parent respawns it.
func (w *Worker) Serve() error {
	frames := make(chan frameOrErr)
	go func() {
		for {
			frame, err := rpc.ReadFrame(w.In)
			frames <- frameOrErr{frame, err}
			if err != nil {
				return
			}
		}
	}()

	for {
		fe := <-frames
		if fe.err != nil {
			if fe.err == io.EOF {
				// Parent closed the pipe: clean exit.
				return nil
			}
			return fe.err
		}
		switch fe.frame.Tag {
		case rpc.TagShutdown:
			logging.Debug("worker: shutdown requested")
			return nil
		case rpc.TagRequest:
			var req Request
			if err := fe.frame.Decode(&req); err != nil {
				return err
			}
			stop, err := w.dispatch(req, frames)
			if err != nil {
				return err
			}
			if stop {
				return nil
			}
		default:
			return fmt.Errorf("%w: unexpected tag 0x%02x from parent", rpc.ErrProtocolViolation, fe.frame.Tag)
		}
	}
}

// dispatch runs one request, watching the stream for a mid-request
// Shutdown. stop means the worker should exit without a result.
func (w *Worker) dispatch(req Request, frames chan frameOrErr) (stop bool, err error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan *Result, 1)
	go func() {
		done <- w.handle(ctx, req)
	}()

	for {
		select {
		case fe := <-frames:
			// Anything arriving while in flight aborts: Shutdown by
			// contract, a stream error because the parent is gone, and a
			// second request because exactly-one-in-flight was violated.
			cancel()
			<-done
			if fe.err == nil && fe.frame.Tag == rpc.TagRequest {
				return true, fmt.Errorf("%w: request while in flight", rpc.ErrProtocolViolation)
			}
			return true, nil
		case result := <-done:
			if result != nil {
				if err := w.send(rpc.TagResult, result); err != nil {
					return true, err
				}
			}
			return false, nil
		}
	}
}

// handle translates one request into engine work. A nil return means
// the request was aborted and no result should be sent.
func (w *Worker) handle(ctx context.Context, req Request) *Result {
	switch {
	case req.Compile != nil:
		return w.handleCompile(ctx, req.Compile)
	case req.Run != nil:
		return w.handleRun(ctx, req.Run)
	case req.Status != nil:
		return w.handleStatus()
	default:
		return &Result{Compile: &compile.Delta{
			Diagnostics: []compile.Diagnostic{compile.OtherError("empty request")},
		}}
	}
}

func (w *Worker) handleCompile(ctx context.Context, req *CompileRequest) (result *Result) {
	if req.Options != nil {
		w.dynamic = append([]string(nil), (*req.Options)...)
	}
	options := append(append([]string(nil), w.StaticOptions...), w.dynamic...)

	targets, err := w.scanTargets(req.SourcesDir, req.Overlay)
	if err != nil {
		return &Result{Compile: &compile.Delta{
			Diagnostics: []compile.Diagnostic{compile.OtherError(err.Error())},
		}}
	}

	progress := compile.NewProgress("")
	var collected []compile.Diagnostic
	hooks := engine.Hooks{
		OnModule: func(module string) {
			progress.Message = fmt.Sprintf("compiling %s ... done.", module)
			if err := w.send(rpc.TagProgress, progress); err != nil {
				logging.Debug("worker: dropped progress frame: %v", err)
			}
			progress = progress.Update("")
		},
		OnDiagnostic: func(d compile.Diagnostic) {
			collected = append(collected, d)
		},
	}

	// Engine exceptions must not kill the worker: keep the diagnostics
	// collected so far, describe the failure, and restart the engine so
	// the next request starts fresh.
	defer func() {
		if r := recover(); r != nil {
			logging.Error("engine crashed: %v", r)
			w.Engine.Reset()
			diags := append(collected, compile.OtherError(fmt.Sprintf("compile engine exception: %v", r)))
			result = &Result{Compile: &compile.Delta{
				Diagnostics:   diags,
				LoadedModules: []string{},
			}}
		}
	}()

	next, err := w.Engine.Compile(ctx, engine.CompileRequest{
		Targets:      targets,
		Options:      options,
		GenerateCode: req.GenerateCode,
	}, hooks)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		w.Engine.Reset()
		diags := append(collected, compile.OtherError(fmt.Sprintf("compile engine exception: %v", err)))
		return &Result{Compile: &compile.Delta{
			Diagnostics:   diags,
			LoadedModules: []string{},
		}}
	}

	delta := compile.Diff(w.prev, next, w.shipped)
	w.prev = next
	w.shipped = w.cache.Len()
	return &Result{Compile: &delta}
}

func (w *Worker) handleRun(ctx context.Context, req *RunRequest) *Result {
	outcome, err := w.Engine.Run(ctx, req.Module, req.Identifier,
		resolveEnv(os.Environ(), req.Env), &runWriter{worker: w})
	if err != nil {
		outcome = compile.RunResult{
			Status:  compile.RunException,
			Message: err.Error(),
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return &Result{Run: &outcome}
}

// runWriter frames the computation's stdout into Progress chunks.
type runWriter struct {
	worker *Worker
}

func (rw *runWriter) Write(p []byte) (int, error) {
	chunk := make([]byte, len(p))
	copy(chunk, p)
	if err := rw.worker.send(rpc.TagProgress, compile.RunChunk{Output: chunk}); err != nil {
		return 0, err
	}
	return len(p), nil
}

// scanTargets enumerates compile targets: the sources directory is
// re-scanned every compile, then overlay entries supersede same-path
// disk files.
func (w *Worker) scanTargets(sourcesDir string, overlay map[string][]byte) ([]engine.Target, error) {
	byPath := make(map[string][]byte)

	var walk func(rel string) error
	walk = func(rel string) error {
		dir := sourcesDir
		if rel != "" {
			dir = path.Join(sourcesDir, rel)
		}
		entries, err := w.FS.ReadDir(dir)
		if err != nil {
			if rel == "" {
				// An absent sources dir compiles as an empty project.
				return nil
			}
			return err
		}
		for _, entry := range entries {
			p := entry.Name()
			if rel != "" {
				p = path.Join(rel, entry.Name())
			}
			if entry.IsDir() {
				if err := walk(p); err != nil {
					return err
				}
				continue
			}
			ok, err := doublestar.Match(sourcePattern, p)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			contents, err := w.FS.ReadFile(path.Join(sourcesDir, p))
			if err != nil {
				return fmt.Errorf("read target %q: %w", p, err)
			}
			byPath[p] = contents
		}
		return nil
	}
	if err := walk(""); err != nil {
		return nil, err
	}

	for p, contents := range overlay {
		ok, err := doublestar.Match(sourcePattern, p)
		if err != nil {
			return nil, err
		}
		if ok {
			byPath[p] = contents
		}
	}

	paths := make([]string, 0, len(byPath))
	for p := range byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	targets := make([]engine.Target, len(paths))
	for i, p := range paths {
		targets[i] = engine.Target{Path: p, Contents: byPath[p]}
	}
	return targets, nil
}

func (w *Worker) send(tag byte, payload any) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return rpc.WriteFrame(w.Out, tag, payload)
}

// resolveEnv applies the session's environment overlay to the worker's
// inherited environment.
func resolveEnv(base []string, overlay []EnvVar) []string {
	if len(overlay) == 0 {
		return base
	}
	byName := make(map[string]string, len(base))
	order := make([]string, 0, len(base))
	for _, kv := range base {
		name, _, _ := strings.Cut(kv, "=")
		if _, seen := byName[name]; !seen {
			order = append(order, name)
		}
		byName[name] = kv
	}
	for _, v := range overlay {
		if v.Value == nil {
			delete(byName, v.Name)
			continue
		}
		if _, seen := byName[v.Name]; !seen {
			order = append(order, v.Name)
		}
		byName[v.Name] = v.Name + "=" + *v.Value
	}
	resolved := make([]string, 0, len(byName))
	for _, name := range order {
		if kv, ok := byName[name]; ok {
			resolved = append(resolved, kv)
		}
	}
	return resolved
}
