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

import "bennypowers.dev/idekit/compile"

// Request is the tagged union of worker requests. Exactly one field is
// set.
type Request struct {
	Compile *CompileRequest `json:"compile,omitempty"`
	Run     *RunRequest     `json:"run,omitempty"`
	Status  *StatusRequest  `json:"status,omitempty"`
}

// CompileRequest asks the worker to recompile the session snapshot.
type CompileRequest struct {
	// Options replaces the dynamic compiler options when non-nil; nil
	// means "reuse previous".
	Options *[]string `json:"options,omitempty"`
	// SourcesDir is the on-disk module tree, re-scanned every compile.
	SourcesDir string `json:"sourcesDir"`
	// Overlay carries the virtual file store snapshot. Overlay entries
	// supersede same-path files found under SourcesDir.
	Overlay      map[string][]byte `json:"overlay,omitempty"`
	GenerateCode bool              `json:"generateCode"`
}

// EnvVar mirrors the session's run-environment overlay on the wire. A
// nil Value unsets the variable.
type EnvVar struct {
	Name  string  `json:"name"`
	Value *string `json:"value"`
}

// RunRequest asks the worker to execute module.identifier.
type RunRequest struct {
	Module     string   `json:"module"`
	Identifier string   `json:"identifier"`
	Env        []EnvVar `json:"env,omitempty"`
}

// StatusRequest asks for the worker's process vitals.
type StatusRequest struct{}

// Status reports the worker's process vitals, gathered with gopsutil.
type Status struct {
	Pid           int32   `json:"pid"`
	RSSBytes      uint64  `json:"rssBytes"`
	CPUPercent    float64 `json:"cpuPercent"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

// Result is the terminal payload of a request, mirroring Request.
type Result struct {
	Compile *compile.Delta     `json:"compile,omitempty"`
	Run     *compile.RunResult `json:"run,omitempty"`
	Status  *Status            `json:"status,omitempty"`
}
