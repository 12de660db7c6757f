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
package compile

import (
	"encoding/json"
	"fmt"
)

// RunStatus discriminates how an executed entry point ended.
type RunStatus int

const (
	// RunCompleted means the computation returned normally.
	RunCompleted RunStatus = iota
	// RunException means the computation raised.
	RunException
	// RunForceStopped means the computation was stopped externally.
	RunForceStopped
)

var runStatusNames = map[RunStatus]string{
	RunCompleted:    "completed",
	RunException:    "exception",
	RunForceStopped: "stopped",
}

func (s RunStatus) String() string {
	if name, ok := runStatusNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON encodes the status as its wire name.
func (s RunStatus) MarshalJSON() ([]byte, error) {
	name, ok := runStatusNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown run status %d", int(s))
	}
	return json.Marshal(name)
}

// UnmarshalJSON decodes a wire status name.
func (s *RunStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for status, n := range runStatusNames {
		if n == name {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown run status %q", name)
}

// RunResult is the terminal outcome of a Run request. Message carries
// the exception text for RunException.
type RunResult struct {
	Status  RunStatus `json:"status"`
	Message string    `json:"message,omitempty"`
}

// RunChunk is a non-terminal Run progress payload: a slice of the
// computation's stdout.
type RunChunk struct {
	Output []byte `json:"output"`
}
