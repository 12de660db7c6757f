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
	"io"
	"os"
	"os/exec"

	"bennypowers.dev/idekit/internal/logging"
	"bennypowers.dev/idekit/internal/platform"
	"bennypowers.dev/idekit/rpc"
	"bennypowers.dev/idekit/worker"
)

// workerProc is one live worker behind a session: its RPC client plus
// lifecycle hooks.
type workerProc struct {
	client *rpc.Client
	// stop closes the worker's input so it winds down.
	stop func()
	// wait blocks until the worker has exited.
	wait func() error
}

// Spawner starts a worker for a session. The production spawner
// re-executes this binary in --server mode; tests and embedders may run
// the worker in-process instead.
type Spawner func(cfg Config, staticOptions []string) (*workerProc, error)

// execSpawner re-executes the current binary with the worker argv
// contract: --server, the static compiler options, the options
// sentinel, then the transport parameters. The child's stdin/stdout
// carry framed RPC; its stderr passes through for human eyes.
func execSpawner(cfg Config, staticOptions []string) (*workerProc, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate worker binary: %w", err)
	}

	argv := append([]string{"--server"}, staticOptions...)
	argv = append(argv, worker.OptionsEnd, cfg.TempDir)

	cmd := exec.Command(exe, argv...)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn worker: %w", err)
	}
	logging.Debug("spawned worker pid %d", cmd.Process.Pid)

	return &workerProc{
		client: rpc.NewClient(stdout, stdin),
		stop:   func() { stdin.Close() },
		wait:   cmd.Wait,
	}, nil
}

// InProcess returns a spawner that serves the worker on in-process
// pipes over the given filesystem. The test suite uses it throughout;
// embedders that cannot re-execute their binary may too.
func InProcess(fsys platform.FileSystem) Spawner {
	return func(cfg Config, staticOptions []string) (*workerProc, error) {
		workerIn, clientOut := io.Pipe()
		clientIn, workerOut := io.Pipe()

		w := worker.New(workerIn, workerOut, staticOptions)
		w.FS = fsys
		w.TempDir = cfg.TempDir

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
