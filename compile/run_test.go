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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunResult_WireNames(t *testing.T) {
	for status, want := range map[RunStatus]string{
		RunCompleted:    `{"status":"completed"}`,
		RunException:    `{"status":"exception"}`,
		RunForceStopped: `{"status":"stopped"}`,
	} {
		data, err := json.Marshal(RunResult{Status: status})
		require.NoError(t, err)
		assert.JSONEq(t, want, string(data))

		var back RunResult
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, status, back.Status)
	}
}

func TestRunStatus_RejectsUnknownName(t *testing.T) {
	var s RunStatus
	assert.Error(t, json.Unmarshal([]byte(`"vanished"`), &s))
}
