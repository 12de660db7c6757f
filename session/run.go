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
	"sync"

	"bennypowers.dev/idekit/compile"
	"bennypowers.dev/idekit/internal/logging"
	"bennypowers.dev/idekit/internal/platform"
	"bennypowers.dev/idekit/rpc"
	"bennypowers.dev/idekit/update"
	"bennypowers.dev/idekit/worker"
)

// RunHandle streams one executing entry point: stdout chunks followed
// by a terminal outcome.
type RunHandle struct {
	chunks chan []byte
	done   chan struct{}
	result compile.RunResult
	err    error

	mu     sync.Mutex
	client *rpc.Client
}

// Next blocks for the next stdout chunk; ok is false once the stream
// ends.
func (h *RunHandle) Next() (chunk []byte, ok bool) {
	chunk, ok = <-h.chunks
	return chunk, ok
}

// Wait drains remaining output and returns the terminal outcome.
func (h *RunHandle) Wait() (compile.RunResult, error) {
	for range h.chunks {
	}
	<-h.done
	return h.result, h.err
}

// Interrupt stops the running computation. The outcome reports it as
// externally stopped.
func (h *RunHandle) Interrupt() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.client != nil {
		if err := h.client.Cancel(); err != nil {
			logging.Debug("interrupt: %v", err)
		}
	}
}

func (h *RunHandle) finish(result compile.RunResult, err error) {
	close(h.chunks)
	h.result = result
	h.err = err
	close(h.done)
}

// RunStmt starts executing module.identifier inside the worker, under
// the session's environment overlay. The computation runs in the worker
// process's own working directory; the session's data dir is not made
// its working directory. Running does not advance the state token.
func (s *Session) RunStmt(module, identifier string) (*RunHandle, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	c := s.c
	c.mu.Lock()
	if c.proc == nil {
		pending := c.pendingFailure
		c.mu.Unlock()
		if pending != nil {
			return nil, pending
		}
		return nil, rpc.ErrWorkerGone
	}
	proc := c.proc
	env := make([]worker.EnvVar, len(c.env))
	for i, v := range c.env {
		env[i] = worker.EnvVar{Name: v.Name, Value: v.Value}
	}
	c.mu.Unlock()

	h := &RunHandle{
		chunks: make(chan []byte, 64),
		done:   make(chan struct{}),
		client: proc.client,
	}

	go func() {
		c.rpcMu.Lock()
		defer c.rpcMu.Unlock()

		req := worker.RunRequest{Module: module, Identifier: identifier, Env: env}
		var result worker.Result
		var err error
		platform.ProcessGate().Shared(func() {
			err = proc.client.Call(worker.Request{Run: &req}, func(f rpc.Frame) {
				var chunk compile.RunChunk
				if err := f.Decode(&chunk); err != nil {
					logging.Debug("session %s: bad run chunk: %v", c.id, err)
					return
				}
				h.chunks <- chunk.Output
			}, &result)
		})

		if err != nil {
			c.mu.Lock()
			c.loseWorker(err)
			c.mu.Unlock()
			if errors.Is(err, rpc.ErrCancelled) {
				h.finish(compile.RunResult{Status: compile.RunForceStopped}, nil)
			} else {
				h.finish(compile.RunResult{}, err)
			}
			return
		}
		if result.Run == nil {
			h.finish(compile.RunResult{}, rpc.ErrProtocolViolation)
			return
		}
		h.finish(*result.Run, nil)
	}()

	return h, nil
}

// Env returns the session's current run-environment overlay.
func (s *Session) Env() []update.EnvVar {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	return append([]update.EnvVar(nil), s.c.env...)
}
