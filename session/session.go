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

// Package session implements the client-visible compilation session: a
// versioned handle over a virtual file overlay and an out-of-process
// compiler worker.
//
// A Session value is immutable. Mutating operations return a successor
// handle carrying the advanced state token; the predecessor handle then
// fails every operation with token.ErrStaleSession. All handles of one
// lineage share the live state (overlay, worker, computed result).
package session

import (
	"errors"
	"sync"

	"bennypowers.dev/idekit/compile"
	"bennypowers.dev/idekit/internal/logging"
	"bennypowers.dev/idekit/internal/platform"
	"bennypowers.dev/idekit/token"
	"bennypowers.dev/idekit/update"
	"bennypowers.dev/idekit/vfs"
	"github.com/segmentio/ksuid"
)

// ErrNoComputedYet reports a computed-backed query before the first
// successful compile, or after a mutation invalidated the result.
var ErrNoComputedYet = errors.New("no computed result for this session yet")

// core is the live state shared by all handles of one session lineage.
type core struct {
	id         string
	config     Config
	cell       *token.Cell
	fs         platform.FileSystem
	store      *vfs.Store
	spawn      Spawner
	staticOpts []string

	// mu guards the mutable fields below.
	mu sync.Mutex
	// rpcMu serialises conversations with the worker: exactly one
	// request in flight.
	rpcMu sync.Mutex

	proc *workerProc
	// workerFresh marks a worker that has not compiled yet; its first
	// delta applies against a nil baseline.
	workerFresh bool
	// pendingFailure is a worker loss to surface in the next compile's
	// diagnostics.
	pendingFailure error

	// computed is cleared by any mutation; lastApplied tracks the last
	// result actually applied, which stays the delta baseline across
	// mutations because the worker's state survives them.
	computed    *compile.Computed
	lastApplied *compile.Computed

	dynamic      []string
	optionsDirty bool
	genCode      bool
	env          []update.EnvVar
}

// Session is a client-held handle to a live compilation context.
type Session struct {
	c   *core
	tok token.Token
}

// Option customises Init. Production sessions take the defaults; tests
// inject their own token cell, filesystem and spawner.
type Option func(*initOptions)

type initOptions struct {
	cell  *token.Cell
	fs    platform.FileSystem
	spawn Spawner
}

// WithCell uses an independent token cell instead of the process cell.
func WithCell(cell *token.Cell) Option {
	return func(o *initOptions) { o.cell = cell }
}

// WithFileSystem backs the session with fsys instead of the OS.
func WithFileSystem(fsys platform.FileSystem) Option {
	return func(o *initOptions) { o.fs = fsys }
}

// WithSpawner overrides how the worker process is started.
func WithSpawner(spawn Spawner) Option {
	return func(o *initOptions) { o.spawn = spawn }
}

// Init creates a session: it parses the static options, prepares the
// session directories, spawns the worker, and remembers the current
// state token. Init is non-mutating from the token's viewpoint — a new
// session starts already in sync.
func Init(cfg Config, opts ...Option) (*Session, error) {
	o := initOptions{
		cell:  token.ProcessCell(),
		fs:    platform.NewOSFileSystem(),
		spawn: execSpawner,
	}
	for _, opt := range opts {
		opt(&o)
	}

	id := ksuid.New().String()
	cfg = cfg.withDefaults(id)
	static, dynamic := splitOptions(cfg.StaticOptions)
	static = append(static, staticConfigOptions(cfg)...)

	for _, dir := range []string{cfg.SourcesDir, cfg.WorkingDir, cfg.DataDir, cfg.TempDir} {
		if err := o.fs.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	proc, err := o.spawn(cfg, static)
	if err != nil {
		return nil, err
	}

	c := &core{
		id:           id,
		config:       cfg,
		cell:         o.cell,
		fs:           o.fs,
		store:        vfs.NewStore(o.fs, cfg.SourcesDir, cfg.DataDir),
		spawn:        o.spawn,
		staticOpts:   static,
		proc:         proc,
		workerFresh:  true,
		dynamic:      dynamic,
		optionsDirty: true,
	}
	logging.Debug("session %s: initialised (sources=%s)", id, cfg.SourcesDir)
	return &Session{c: c, tok: o.cell.Current()}, nil
}

// ID returns the session's identifier, used in logs and scratch paths.
func (s *Session) ID() string {
	return s.c.id
}

// Config returns the session's resolved configuration.
func (s *Session) Config() Config {
	return s.c.config
}

// Token returns the handle's remembered state token.
func (s *Session) Token() token.Token {
	return s.tok
}

// check fails with token.ErrStaleSession if this handle missed a
// mutation.
func (s *Session) check() error {
	return s.c.cell.Check(s.tok)
}

// UpdateFiles atomically applies the batch's staged mutations and
// returns the successor handle. The computed result is invalidated.
func (s *Session) UpdateFiles(batch update.Batch) (*Session, error) {
	c := s.c
	newTok, err := c.cell.Mutate(s.tok, func() error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.applyBatch(batch)
		c.computed = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Session{c: c, tok: newTok}, nil
}

// applyBatch stages every mutation in order; later puts to the same
// path win. Callers hold c.mu.
func (c *core) applyBatch(batch update.Batch) {
	for _, m := range batch.Mutations() {
		switch m.Kind {
		case update.KindPutSource:
			c.store.Put(m.Path, m.Contents, vfs.Source)
		case update.KindDeleteSource:
			c.store.Delete(m.Path)
		case update.KindPutData:
			c.store.Put(m.Path, m.Contents, vfs.Data)
		case update.KindDeleteData:
			c.store.Delete(m.Path)
		case update.KindOptions:
			c.dynamic = append([]string(nil), m.Options...)
			c.optionsDirty = true
		case update.KindGenerateCode:
			c.genCode = m.GenerateCode
		case update.KindEnv:
			c.env = append([]update.EnvVar(nil), m.Env...)
		}
	}
}

// Shutdown advances the token, stops the worker and waits for it to
// exit. Every subsequent operation on any handle of this lineage fails
// with token.ErrStaleSession.
func (s *Session) Shutdown() error {
	c := s.c
	_, err := c.cell.Mutate(s.tok, func() error {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.proc != nil {
			// A write failure just means the worker is already gone.
			_ = c.proc.client.Shutdown()
			c.proc.stop()
			if err := c.proc.wait(); err != nil {
				logging.Debug("session %s: worker exit: %v", c.id, err)
			}
			c.proc = nil
		}
		if c.config.DeleteTempFiles {
			if err := c.fs.RemoveAll(c.config.TempDir); err != nil {
				logging.Warning("session %s: temp cleanup: %v", c.id, err)
			}
		}
		return nil
	})
	if err == nil {
		logging.Debug("session %s: shut down", c.id)
	}
	return err
}
