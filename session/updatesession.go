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
	"errors"
	"fmt"
	"sync"

	"bennypowers.dev/idekit/compile"
	"bennypowers.dev/idekit/internal/logging"
	"bennypowers.dev/idekit/internal/platform"
	"bennypowers.dev/idekit/rpc"
	"bennypowers.dev/idekit/token"
	"bennypowers.dev/idekit/worker"
)

// ProgressHandle is the pull side of one compile request: a finite,
// non-restartable stream of progress events followed by one terminal
// result, drained exactly once.
type ProgressHandle struct {
	events chan compile.Progress
	done   chan struct{}
	result *Session
	err    error

	mu        sync.Mutex
	client    *rpc.Client
	cancelled bool
}

// Next blocks for the next progress event. ok is false once the stream
// is exhausted; Wait then yields the terminal outcome.
func (h *ProgressHandle) Next() (p compile.Progress, ok bool) {
	p, ok = <-h.events
	return p, ok
}

// Wait drains any unconsumed progress events and blocks until the
// compile completes. The successor handle is returned even when the
// compile failed or was cancelled: the token advanced at enqueue, so
// the successor is the only current handle, and its next compile
// restarts the worker if this one was lost. After Cancel the error is
// rpc.ErrCancelled.
func (h *ProgressHandle) Wait() (*Session, error) {
	for range h.events {
	}
	<-h.done
	return h.result, h.err
}

// Cancel aborts the in-flight compile: the worker is shut down and
// drained, and Wait returns rpc.ErrCancelled. The token advance already
// happened at enqueue, so pre-cancel handles stay stale.
func (h *ProgressHandle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancelled = true
	if h.client != nil {
		if err := h.client.Cancel(); err != nil {
			logging.Debug("cancel: %v", err)
		}
	}
}

// setClient arms Cancel once the (possibly restarted) worker is known.
func (h *ProgressHandle) setClient(client *rpc.Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.client = client
	if h.cancelled {
		if err := client.Cancel(); err != nil {
			logging.Debug("cancel: %v", err)
		}
	}
}

func (h *ProgressHandle) emit(p compile.Progress) {
	h.events <- p
}

func (h *ProgressHandle) finish(result *Session, err error) {
	close(h.events)
	h.result = result
	h.err = err
	close(h.done)
}

// UpdateSession enqueues a compile of the current overlay snapshot and
// returns immediately. The token advances at enqueue time: even a
// cancelled compile invalidates older handles, keeping the handle
// lineage linear.
func (s *Session) UpdateSession() (*ProgressHandle, error) {
	c := s.c
	newTok, err := c.cell.Mutate(s.tok, func() error { return nil })
	if err != nil {
		return nil, err
	}

	h := &ProgressHandle{
		events: make(chan compile.Progress, 64),
		done:   make(chan struct{}),
	}
	go c.runCompile(h, newTok)
	return h, nil
}

// runCompile owns one compile conversation end to end: worker restart
// if the previous one was lost, the RPC call, and delta application.
func (c *core) runCompile(h *ProgressHandle, newTok token.Token) {
	c.rpcMu.Lock()
	defer c.rpcMu.Unlock()

	c.mu.Lock()
	if err := c.ensureWorker(); err != nil {
		c.mu.Unlock()
		h.finish(&Session{c: c, tok: newTok}, err)
		return
	}
	surfaced := c.pendingFailure
	c.pendingFailure = nil
	proc := c.proc
	freshWorker := c.workerFresh

	req := worker.CompileRequest{
		SourcesDir:   c.config.SourcesDir,
		Overlay:      c.store.Snapshot(),
		GenerateCode: c.genCode,
	}
	if c.optionsDirty {
		opts := append([]string(nil), c.dynamic...)
		req.Options = &opts
	}
	c.mu.Unlock()

	h.setClient(proc.client)

	// The conversation holds a shared slot: compiles scan the session's
	// directories and must not interleave with exclusive work like
	// builds.
	var result worker.Result
	var err error
	platform.ProcessGate().Shared(func() {
		err = proc.client.Call(worker.Request{Compile: &req}, func(f rpc.Frame) {
			var p compile.Progress
			if err := f.Decode(&p); err != nil {
				logging.Debug("session %s: bad progress frame: %v", c.id, err)
				return
			}
			h.emit(p)
		}, &result)
	})

	successor := &Session{c: c, tok: newTok}
	if err != nil {
		c.mu.Lock()
		c.loseWorker(err)
		c.mu.Unlock()
		if errors.Is(err, rpc.ErrCancelled) {
			h.finish(successor, rpc.ErrCancelled)
		} else {
			h.finish(successor, err)
		}
		return
	}
	if result.Compile == nil {
		err := fmt.Errorf("%w: compile request answered without a compile result", rpc.ErrProtocolViolation)
		c.mu.Lock()
		c.loseWorker(err)
		c.mu.Unlock()
		h.finish(successor, err)
		return
	}

	c.mu.Lock()
	baseline := c.lastApplied
	if freshWorker {
		// A restarted worker rebuilt its state from scratch; its first
		// delta is absolute.
		baseline = nil
	}
	applied, err := result.Compile.Apply(baseline)
	if err != nil {
		c.loseWorker(err)
		c.mu.Unlock()
		h.finish(successor, err)
		return
	}
	if surfaced != nil {
		applied.Diagnostics = append(
			[]compile.Diagnostic{compile.OtherError(surfaced.Error())},
			applied.Diagnostics...)
	}
	c.computed = applied
	c.lastApplied = applied
	c.workerFresh = false
	if req.Options != nil {
		c.optionsDirty = false
	}
	c.mu.Unlock()

	h.finish(successor, nil)
}

// ensureWorker respawns after a loss. Callers hold c.mu.
func (c *core) ensureWorker() error {
	if c.proc != nil {
		return nil
	}
	proc, err := c.spawn(c.config, c.staticOpts)
	if err != nil {
		return err
	}
	logging.Debug("session %s: worker restarted", c.id)
	c.proc = proc
	c.workerFresh = true
	c.optionsDirty = true
	return nil
}

// loseWorker records a dead worker. Cancellation is deliberate and not
// surfaced; protocol violations and pipe loss are, on the next compile.
// Callers hold c.mu.
func (c *core) loseWorker(err error) {
	if c.proc != nil {
		c.proc.stop()
		if wErr := c.proc.wait(); wErr != nil {
			logging.Debug("session %s: worker exit: %v", c.id, wErr)
		}
		c.proc = nil
	}
	if !errors.Is(err, rpc.ErrCancelled) {
		c.pendingFailure = err
		logging.Warning("session %s: worker lost: %v", c.id, err)
	}
}
