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
package worker

import (
	"os"

	"bennypowers.dev/idekit/internal/logging"
)

// OptionsEnd is the argv sentinel separating static compiler options
// from transport parameters in the worker spawn contract.
const OptionsEnd = "--ghc-opts-end"

// Main is the worker-mode process entry. args is everything after the
// --server flag: static compiler options, the sentinel, then transport
// parameters (currently just the session temp dir). Returns the process
// exit code.
//
// All logging goes to stderr: stdout is the RPC channel and anything
// else written there is a protocol violation from the parent's view.
func Main(args []string) int {
	logging.SetMode(logging.ModeWorker)

	staticOptions := args
	var transport []string
	for i, arg := range args {
		if arg == OptionsEnd {
			staticOptions = args[:i]
			transport = args[i+1:]
			break
		}
	}

	w := New(os.Stdin, os.Stdout, staticOptions)
	if len(transport) > 0 {
		w.TempDir = transport[0]
	}
	logging.Debug("worker: serving (options=%v, tempdir=%q)", staticOptions, w.TempDir)

	if err := w.Serve(); err != nil {
		logging.Error("worker: %v", err)
		return 1
	}
	return 0
}
