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
	"testing"

	"bennypowers.dev/idekit/compile"
	"bennypowers.dev/idekit/internal/platform"
	"bennypowers.dev/idekit/token"
	"bennypowers.dev/idekit/update"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, files map[string]string) *Session {
	t.Helper()
	fs := platform.NewMapFS(files)
	s, err := Init(Config{
		SourcesDir: "src",
		WorkingDir: "work",
		DataDir:    "data",
		TempDir:    "tmp",
	},
		WithCell(token.NewCell()),
		WithFileSystem(fs),
		WithSpawner(InProcess(fs)),
	)
	require.NoError(t, err)
	return s
}

// recompiled pushes a batch and waits out the triggered compile.
func recompiled(t *testing.T, s *Session, batch update.Batch) *Session {
	t.Helper()
	s, err := s.UpdateFiles(batch)
	require.NoError(t, err)
	h, err := s.UpdateSession()
	require.NoError(t, err)
	s, err = h.Wait()
	require.NoError(t, err)
	return s
}

func TestSession_FreshEmptyCompile(t *testing.T) {
	s := newTestSession(t, nil)

	h, err := s.UpdateSession()
	require.NoError(t, err)
	s, err = h.Wait()
	require.NoError(t, err)

	errs, err := s.GetSourceErrors()
	require.NoError(t, err)
	assert.Empty(t, errs)

	loaded, err := s.GetLoadedModules()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestSession_PutThenQuery(t *testing.T) {
	s := newTestSession(t, nil)

	s = recompiled(t, s, update.PutSource("M", []byte("module M where\nx = 1\n")))

	errs, err := s.GetSourceErrors()
	require.NoError(t, err)
	for _, d := range errs {
		assert.NotEqual(t, compile.KindError, d.Kind)
	}

	loaded, err := s.GetLoadedModules()
	require.NoError(t, err)
	assert.Contains(t, loaded, "M")

	src, err := s.GetSourceModule("M")
	require.NoError(t, err)
	assert.Contains(t, string(src), "x = 1")
}

func TestSession_SyntaxErrorIsDiagnosticNotFailure(t *testing.T) {
	s := newTestSession(t, nil)

	s = recompiled(t, s, update.PutSource("M", []byte("module M where\nx =\n")))

	errs, err := s.GetSourceErrors()
	require.NoError(t, err)

	var sawError bool
	for _, d := range errs {
		if d.Kind == compile.KindError && d.File == "M.hs" {
			sawError = true
		}
	}
	assert.True(t, sawError, "expected a source error for M.hs, got %v", errs)
}

func TestSession_StaleHandleRejected(t *testing.T) {
	s0 := newTestSession(t, nil)

	_, err := s0.UpdateFiles(update.PutSource("M", []byte("module M where\n")))
	require.NoError(t, err)

	_, err = s0.UpdateFiles(update.Empty())
	assert.ErrorIs(t, err, token.ErrStaleSession)

	_, err = s0.UpdateSession()
	assert.ErrorIs(t, err, token.ErrStaleSession)

	_, err = s0.GetSourceModule("M")
	assert.ErrorIs(t, err, token.ErrStaleSession)
}

func TestSession_QueriesBeforeFirstCompile(t *testing.T) {
	s := newTestSession(t, nil)

	_, err := s.GetSourceErrors()
	assert.ErrorIs(t, err, ErrNoComputedYet)

	_, err = s.GetLoadedModules()
	assert.ErrorIs(t, err, ErrNoComputedYet)
}

func TestSession_MutationInvalidatesComputed(t *testing.T) {
	s := newTestSession(t, nil)
	s = recompiled(t, s, update.PutSource("M", []byte("module M where\nx = 1\n")))

	_, err := s.GetLoadedModules()
	require.NoError(t, err)

	s, err = s.UpdateFiles(update.PutSource("M", []byte("module M where\nx = 2\n")))
	require.NoError(t, err)

	_, err = s.GetLoadedModules()
	assert.ErrorIs(t, err, ErrNoComputedYet)

	// The next compile restores it.
	h, err := s.UpdateSession()
	require.NoError(t, err)
	s, err = h.Wait()
	require.NoError(t, err)
	loaded, err := s.GetLoadedModules()
	require.NoError(t, err)
	assert.Equal(t, []string{"M"}, loaded)
}

func TestSession_ProgressEventsAreOrdered(t *testing.T) {
	s := newTestSession(t, map[string]string{
		"src/A.hs": "module A where\na = 1\n",
		"src/B.hs": "module B where\nb = 2\n",
	})

	h, err := s.UpdateSession()
	require.NoError(t, err)

	var steps []int
	for {
		p, ok := h.Next()
		if !ok {
			break
		}
		steps = append(steps, p.Step)
	}
	_, err = h.Wait()
	require.NoError(t, err)

	require.Len(t, steps, 2)
	assert.Equal(t, []int{1, 2}, steps)
}

func TestSession_MetadataQueries(t *testing.T) {
	s := newTestSession(t, nil)
	s = recompiled(t, s, update.PutSource("M",
		[]byte("module M where\nimport Data.List\nx = 1\ny = x\n")))

	imports, err := s.GetImports("M")
	require.NoError(t, err)
	require.Len(t, imports, 1)
	name, err := s.Resolve(imports[0].Module)
	require.NoError(t, err)
	assert.Equal(t, "Data.List", name)

	completions, err := s.GetAutoCompletion("M")
	require.NoError(t, err)
	names := map[string]bool{}
	for _, c := range completions {
		n, err := s.Resolve(c.Name)
		require.NoError(t, err)
		names[n] = true
	}
	assert.True(t, names["x"] && names["y"])

	spans, err := s.GetSpanInfo("M")
	require.NoError(t, err)
	assert.NotEmpty(t, spans)

	types, err := s.GetExpTypes("M")
	require.NoError(t, err)
	assert.NotEmpty(t, types)

	sites, err := s.GetUseSites("M")
	require.NoError(t, err)
	assert.NotEmpty(t, sites)

	// Unknown modules read as empty, not as errors.
	empty, err := s.GetImports("Ghost")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSession_EngineCrashIsRecovered(t *testing.T) {
	s := newTestSession(t, nil)

	s = recompiled(t, s, update.PutSource("Bad", []byte("module Bad where\n{-# PANIC #-}\n")))

	errs, err := s.GetSourceErrors()
	require.NoError(t, err)
	require.NotEmpty(t, errs)
	assert.Equal(t, compile.KindMessage, errs[len(errs)-1].Kind)

	// An innocuous follow-up compiles clean on the same worker.
	s = recompiled(t, s, update.PutSource("Bad", []byte("module Bad where\nok = 1\n")))
	errs, err = s.GetSourceErrors()
	require.NoError(t, err)
	assert.Empty(t, errs)
	loaded, err := s.GetLoadedModules()
	require.NoError(t, err)
	assert.Equal(t, []string{"Bad"}, loaded)
}

func TestSession_ListSourceModulesAndDataFiles(t *testing.T) {
	s := newTestSession(t, map[string]string{
		"src/A.hs":       "module A where\n",
		"data/input.txt": "payload",
	})

	s, err := s.UpdateFiles(update.Append(
		update.PutSource("B", []byte("module B where\n")),
		update.PutData("out.txt", []byte("x")),
	))
	require.NoError(t, err)

	modules, err := s.ListSourceModules()
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, modules)

	files, err := s.ListDataFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"input.txt", "out.txt"}, files)
}

func TestSession_RunStmtStreamsOutput(t *testing.T) {
	s := newTestSession(t, nil)

	batch := update.Append(
		update.PutSource("M", []byte("module M where\nhello = \"Hello, world!\"\n")),
		update.GenerateCode(true),
	)
	s = recompiled(t, s, batch)

	h, err := s.RunStmt("M", "hello")
	require.NoError(t, err)

	var output []byte
	for {
		chunk, ok := h.Next()
		if !ok {
			break
		}
		output = append(output, chunk...)
	}
	result, err := h.Wait()
	require.NoError(t, err)
	assert.Equal(t, compile.RunCompleted, result.Status)
	assert.Equal(t, "Hello, world!\n", string(output))
}

func TestSession_RunStmtExceptionOutcome(t *testing.T) {
	s := newTestSession(t, nil)

	batch := update.Append(
		update.PutSource("M", []byte("module M where\nboom = error \"dies\"\n")),
		update.GenerateCode(true),
	)
	s = recompiled(t, s, batch)

	h, err := s.RunStmt("M", "boom")
	require.NoError(t, err)
	result, err := h.Wait()
	require.NoError(t, err)
	assert.Equal(t, compile.RunException, result.Status)
	assert.Equal(t, "dies", result.Message)
}

func TestSession_WorkerStatus(t *testing.T) {
	s := newTestSession(t, nil)

	status, err := s.WorkerStatus()
	require.NoError(t, err)
	assert.NotZero(t, status.Pid)
}

func TestSession_ShutdownInvalidatesEverything(t *testing.T) {
	fs := platform.NewMapFS(map[string]string{"tmp/scratch.o": "x"})
	s, err := Init(Config{
		SourcesDir:      "src",
		WorkingDir:      "work",
		DataDir:         "data",
		TempDir:         "tmp",
		DeleteTempFiles: true,
	},
		WithCell(token.NewCell()),
		WithFileSystem(fs),
		WithSpawner(InProcess(fs)),
	)
	require.NoError(t, err)

	require.NoError(t, s.Shutdown())

	_, err = s.UpdateFiles(update.Empty())
	assert.ErrorIs(t, err, token.ErrStaleSession)
	_, err = s.GetSourceModule("M")
	assert.ErrorIs(t, err, token.ErrStaleSession)

	assert.False(t, fs.Exists("tmp/scratch.o"), "temp files survived shutdown")
}

func TestSession_TokensAreLinearAcrossSessions(t *testing.T) {
	cell := token.NewCell()
	fs := platform.NewMapFS(nil)
	cfg := Config{SourcesDir: "src", WorkingDir: "work", DataDir: "data", TempDir: "tmp"}

	s1, err := Init(cfg, WithCell(cell), WithFileSystem(fs), WithSpawner(InProcess(fs)))
	require.NoError(t, err)
	s2, err := Init(cfg, WithCell(cell), WithFileSystem(fs), WithSpawner(InProcess(fs)))
	require.NoError(t, err)

	// A mutation through one session stales the other's handle.
	_, err = s1.UpdateFiles(update.PutSource("M", []byte("module M where\n")))
	require.NoError(t, err)

	_, err = s2.UpdateFiles(update.Empty())
	assert.ErrorIs(t, err, token.ErrStaleSession)
}
