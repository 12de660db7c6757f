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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringCache_InternIsStable(t *testing.T) {
	c := NewStringCache()

	id := c.Intern("Data.Map")
	assert.Equal(t, StringID(1), id)
	assert.Equal(t, id, c.Intern("Data.Map"))
	assert.Equal(t, "Data.Map", c.Resolve(id))
}

func TestStringCache_ZeroResolvesEmpty(t *testing.T) {
	c := NewStringCache()
	assert.Equal(t, "", c.Resolve(0))
	assert.Equal(t, "", c.Resolve(42))
}

func TestStringCache_AddedSince(t *testing.T) {
	c := NewStringCache()
	c.Intern("a")
	mark := c.Len()
	c.Intern("b")
	c.Intern("c")

	added := c.Added(mark)
	assert.Equal(t, map[StringID]string{2: "b", 3: "c"}, added)
	assert.Nil(t, c.Added(c.Len()))
}

func TestStringCache_InsertExtendsContiguously(t *testing.T) {
	c := NewStringCache()
	c.Intern("a")

	require.NoError(t, c.Insert(map[StringID]string{2: "b", 3: "c"}))
	assert.Equal(t, "b", c.Resolve(2))
	assert.Equal(t, "c", c.Resolve(3))
}

func TestStringCache_InsertRejectsGap(t *testing.T) {
	c := NewStringCache()
	c.Intern("a")

	err := c.Insert(map[StringID]string{5: "e"})
	assert.Error(t, err)
}

func TestStringCache_InsertRejectsConflict(t *testing.T) {
	c := NewStringCache()
	c.Intern("a")

	err := c.Insert(map[StringID]string{1: "other"})
	assert.Error(t, err)
}

func TestStringCache_CloneIsIndependent(t *testing.T) {
	c := NewStringCache()
	c.Intern("a")

	clone := c.Clone()
	c.Intern("b")

	assert.Equal(t, 1, clone.Len())
	assert.Equal(t, "a", clone.Resolve(1))
	assert.Equal(t, "", clone.Resolve(2))
}
