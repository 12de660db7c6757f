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
package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapFS_ReadWriteRoundTrip(t *testing.T) {
	fs := NewMapFS(map[string]string{"src/M.hs": "module M where\n"})

	data, err := fs.ReadFile("src/M.hs")
	require.NoError(t, err)
	assert.Equal(t, "module M where\n", string(data))

	require.NoError(t, fs.WriteFile("src/N.hs", []byte("module N where\n"), 0644))
	assert.True(t, fs.Exists("src/N.hs"))
}

func TestMapFS_ReadDirListsEntries(t *testing.T) {
	fs := NewMapFS(map[string]string{
		"src/A.hs":     "a",
		"src/Sub/B.hs": "b",
	})

	entries, err := fs.ReadDir("src")
	require.NoError(t, err)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	assert.ElementsMatch(t, []string{"A.hs", "Sub"}, names)
}

func TestMapFS_RemoveAllDeletesPrefix(t *testing.T) {
	fs := NewMapFS(map[string]string{
		"tmp/a":     "1",
		"tmp/sub/b": "2",
		"keep/c":    "3",
	})

	require.NoError(t, fs.RemoveAll("tmp"))
	assert.False(t, fs.Exists("tmp/a"))
	assert.False(t, fs.Exists("tmp/sub/b"))
	assert.True(t, fs.Exists("keep/c"))
}
