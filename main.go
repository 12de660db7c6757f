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
package main

import (
	"os"

	"bennypowers.dev/idekit/cmd"
	"bennypowers.dev/idekit/worker"
)

func main() {
	// Worker mode is argv-pinned by the spawn contract and bypasses the
	// command tree: the parent re-executes this binary as
	// ["--server", <opts...>, "--ghc-opts-end", <tempdir>].
	if len(os.Args) > 1 && os.Args[1] == "--server" {
		os.Exit(worker.Main(os.Args[2:]))
	}
	cmd.Execute()
}
