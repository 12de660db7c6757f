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
	"context"
	"io"
	"testing"

	"bennypowers.dev/idekit/compile"
	"bennypowers.dev/idekit/engine"
	"bennypowers.dev/idekit/internal/platform"
	"bennypowers.dev/idekit/rpc"
	"bennypowers.dev/idekit/token"
	"bennypowers.dev/idekit/update"
	"bennypowers.dev/idekit/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowEngine reports one module then blocks until cancelled, giving
// tests a reliable mid-flight window.
type slowEngine struct{}

func (e *slowEngine) Compile(ctx context.Context, req engine.CompileRequest, hooks engine.Hooks) (*compile.Computed, error) {
	if hooks.OnModule != nil {
		hooks.OnModule("Slow")
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (e *slowEngine) Run(ctx context.Context, module, identifier string, env []string, output io.Writer) (compile.RunResult, error) {
	<-ctx.Done()
	return compile.RunResult{Status: compile.RunForceStopped}, nil
}

func (e *slowEngine) Reset() {}

// withEngine is InProcess with the worker's engine swapped out.
func withEngine(fsys platform.FileSystem, eng engine.Engine) Spawner {
	return func(cfg Config, staticOptions []string) (*workerProc, error) {
		workerIn, clientOut := io.Pipe()
		clientIn, workerOut := io.Pipe()

		w := worker.New(workerIn, workerOut, staticOptions)
		w.FS = fsys
		w.Engine = eng

		done := make(chan error, 1)
		go func() {
			err := w.Serve()
			workerOut.Close()
			done <- err
		}()

		return &workerProc{
			client: rpc.NewClient(clientIn, clientOut),
			stop:   func() { clientOut.Close() },
			wait:   func() error { return <-done },
		}, nil
	}
}

func TestSession_CancelMidCompile(t *testing.T) {
	fs := platform.NewMapFS(nil)
	s, err := Init(Config{SourcesDir: "src", WorkingDir: "work", DataDir: "data", TempDir: "tmp"},
		WithCell(token.NewCell()),
		WithFileSystem(fs),
		WithSpawner(withEngine(fs, &slowEngine{})),
	)
	require.NoError(t, err)

	h, err := s.UpdateSession()
	require.NoError(t, err)

	// The first progress event proves the compile is in flight.
	_, ok := h.Next()
	require.True(t, ok)
	h.Cancel()

	_, err = h.Wait()
	assert.ErrorIs(t, err, rpc.ErrCancelled)

	// The token advanced at enqueue: the pre-cancel handle is stale.
	_, err = s.UpdateFiles(update.Empty())
	assert.ErrorIs(t, err, token.ErrStaleSession)
}

func TestSession_CancelBeforeFirstProgress(t *testing.T) {
	fs := platform.NewMapFS(nil)
	s, err := Init(Config{SourcesDir: "src", WorkingDir: "work", DataDir: "data", TempDir: "tmp"},
		WithCell(token.NewCell()),
		WithFileSystem(fs),
		WithSpawner(withEngine(fs, &slowEngine{})),
	)
	require.NoError(t, err)

	h, err := s.UpdateSession()
	require.NoError(t, err)
	h.Cancel()

	_, err = h.Wait()
	assert.ErrorIs(t, err, rpc.ErrCancelled)
}

// brokenSpawner hands out a scripted worker whose first conversation
// fails, then defers to the real in-process worker.
func brokenSpawner(fsys platform.FileSystem, script func(in io.Reader, out io.WriteCloser)) Spawner {
	real := InProcess(fsys)
	first := true
	return func(cfg Config, staticOptions []string) (*workerProc, error) {
		if !first {
			return real(cfg, staticOptions)
		}
		first = false

		workerIn, clientOut := io.Pipe()
		clientIn, workerOut := io.Pipe()
		go script(workerIn, workerOut)

		return &workerProc{
			client: rpc.NewClient(clientIn, clientOut),
			stop:   func() { clientOut.Close() },
			wait:   func() error { return nil },
		}, nil
	}
}

func initBroken(t *testing.T, script func(in io.Reader, out io.WriteCloser)) *Session {
	t.Helper()
	fs := platform.NewMapFS(nil)
	s, err := Init(Config{SourcesDir: "src", WorkingDir: "work", DataDir: "data", TempDir: "tmp"},
		WithCell(token.NewCell()),
		WithFileSystem(fs),
		WithSpawner(brokenSpawner(fs, script)),
	)
	require.NoError(t, err)
	return s
}

func TestSession_ProtocolViolationRestartsAndSurfaces(t *testing.T) {
	s := initBroken(t, func(in io.Reader, out io.WriteCloser) {
		rpc.ReadFrame(in)
		// A frame with an unknown tag: 1-byte payload 0x7f.
		out.Write([]byte{0, 0, 0, 1, 0x7f})
		out.Close()
	})

	h, err := s.UpdateSession()
	require.NoError(t, err)
	s, err = h.Wait()
	require.ErrorIs(t, err, rpc.ErrProtocolViolation)
	require.NotNil(t, s, "failed compile must still yield the successor handle")

	// The next compile respawns the worker and surfaces the prior
	// failure in its diagnostics.
	h, err = s.UpdateSession()
	require.NoError(t, err)
	s, err = h.Wait()
	require.NoError(t, err)

	errs, err := s.GetSourceErrors()
	require.NoError(t, err)
	require.NotEmpty(t, errs)
	assert.Equal(t, compile.KindMessage, errs[0].Kind)
	assert.Contains(t, errs[0].Message, "protocol violation")
}

func TestSession_WorkerGoneRestartsAndSurfaces(t *testing.T) {
	s := initBroken(t, func(in io.Reader, out io.WriteCloser) {
		rpc.ReadFrame(in)
		out.Close()
	})

	h, err := s.UpdateSession()
	require.NoError(t, err)
	s, err = h.Wait()
	require.ErrorIs(t, err, rpc.ErrWorkerGone)
	require.NotNil(t, s)

	h, err = s.UpdateSession()
	require.NoError(t, err)
	s, err = h.Wait()
	require.NoError(t, err)

	errs, err := s.GetSourceErrors()
	require.NoError(t, err)
	require.NotEmpty(t, errs)
	assert.Equal(t, compile.KindMessage, errs[0].Kind)
}

func TestSession_CompileAfterCancelSucceeds(t *testing.T) {
	fs := platform.NewMapFS(map[string]string{
		"src/M.hs": "module M where\nx = 1\n",
	})
	slow := true
	spawn := func(cfg Config, staticOptions []string) (*workerProc, error) {
		if slow {
			slow = false
			return withEngine(fs, &slowEngine{})(cfg, staticOptions)
		}
		return InProcess(fs)(cfg, staticOptions)
	}
	s, err := Init(Config{SourcesDir: "src", WorkingDir: "work", DataDir: "data", TempDir: "tmp"},
		WithCell(token.NewCell()),
		WithFileSystem(fs),
		WithSpawner(spawn),
	)
	require.NoError(t, err)

	h, err := s.UpdateSession()
	require.NoError(t, err)
	_, ok := h.Next()
	require.True(t, ok)
	h.Cancel()
	s, err = h.Wait()
	require.ErrorIs(t, err, rpc.ErrCancelled)
	require.NotNil(t, s)

	// Cancellation is deliberate: no failure surfaces, and the fresh
	// worker compiles clean.
	h, err = s.UpdateSession()
	require.NoError(t, err)
	s, err = h.Wait()
	require.NoError(t, err)

	errs, err := s.GetSourceErrors()
	require.NoError(t, err)
	assert.Empty(t, errs)
	loaded, err := s.GetLoadedModules()
	require.NoError(t, err)
	assert.Equal(t, []string{"M"}, loaded)
}
