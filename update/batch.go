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

// Package update implements composable batches of staged session
// mutations. A Batch records intent; the session executes it atomically
// while holding the state-token lock.
//
// Batches form a monoid: the zero Batch is a no-op, Append runs the
// left operand's mutations then the right's. Mutations are plain tagged
// records rather than composed closures, so batches stay introspectable
// and comparable in tests.
package update

import (
	"path"
	"strings"
)

// MutationKind tags a staged mutation.
type MutationKind int

const (
	// KindPutSource stages a source module write.
	KindPutSource MutationKind = iota
	// KindDeleteSource stages a source module removal.
	KindDeleteSource
	// KindPutData stages a data file write.
	KindPutData
	// KindDeleteData stages a data file removal.
	KindDeleteData
	// KindOptions replaces the dynamic compiler options wholesale.
	KindOptions
	// KindGenerateCode sets the code generation flag.
	KindGenerateCode
	// KindEnv replaces the process-environment overlay used for runs.
	KindEnv
)

// EnvVar is one entry of the run-environment overlay. A nil Value unsets
// the variable for the child computation.
type EnvVar struct {
	Name  string
	Value *string
}

// Mutation is one staged change. Only the fields relevant to its Kind
// are populated.
type Mutation struct {
	Kind         MutationKind
	Path         string
	Module       string
	Contents     []byte
	Options      []string
	GenerateCode bool
	Env          []EnvVar
}

// Batch is an ordered sequence of staged mutations. The zero value is
// the empty batch.
type Batch struct {
	mutations []Mutation
}

// Empty returns the no-op batch, the monoid identity.
func Empty() Batch {
	return Batch{}
}

// Append composes batches left to right: a's mutations apply before
// b's, so later puts to the same path win.
func Append(a, b Batch) Batch {
	if len(a.mutations) == 0 {
		return b
	}
	if len(b.mutations) == 0 {
		return a
	}
	combined := make([]Mutation, 0, len(a.mutations)+len(b.mutations))
	combined = append(combined, a.mutations...)
	combined = append(combined, b.mutations...)
	return Batch{mutations: combined}
}

// Then is Append with b on the left.
func (b Batch) Then(next Batch) Batch {
	return Append(b, next)
}

// Mutations returns the staged mutations in application order. The
// slice is shared; callers must not modify it.
func (b Batch) Mutations() []Mutation {
	return b.mutations
}

// IsEmpty reports whether the batch stages no mutations.
func (b Batch) IsEmpty() bool {
	return len(b.mutations) == 0
}

// SourcePath maps a hierarchical module name to its file path, e.g.
// "Data.Graph" to "Data/Graph.hs".
func SourcePath(module string) string {
	return path.Join(strings.Split(module, ".")...) + ".hs"
}

// ModuleName is the inverse of SourcePath for recognised source
// extensions; ok is false for non-source paths.
func ModuleName(p string) (name string, ok bool) {
	base, found := strings.CutSuffix(p, ".hs")
	if !found {
		if base, found = strings.CutSuffix(p, ".lhs"); !found {
			return "", false
		}
	}
	return strings.ReplaceAll(base, "/", "."), true
}

// PutSource stages a source module write, identified by module name.
// The contents slice is retained; callers must not reuse it.
func PutSource(module string, contents []byte) Batch {
	return single(Mutation{
		Kind:     KindPutSource,
		Module:   module,
		Path:     SourcePath(module),
		Contents: contents,
	})
}

// DeleteSource stages a source module removal.
func DeleteSource(module string) Batch {
	return single(Mutation{
		Kind:   KindDeleteSource,
		Module: module,
		Path:   SourcePath(module),
	})
}

// PutData stages a data file write, identified by filesystem path.
func PutData(p string, contents []byte) Batch {
	return single(Mutation{Kind: KindPutData, Path: p, Contents: contents})
}

// DeleteData stages a data file removal.
func DeleteData(p string) Batch {
	return single(Mutation{Kind: KindDeleteData, Path: p})
}

// Options stages a full replacement of the dynamic compiler options.
func Options(opts []string) Batch {
	return single(Mutation{Kind: KindOptions, Options: opts})
}

// GenerateCode stages the code-generation flag.
func GenerateCode(enable bool) Batch {
	return single(Mutation{Kind: KindGenerateCode, GenerateCode: enable})
}

// Env stages the process-environment overlay applied to runs.
func Env(vars []EnvVar) Batch {
	return single(Mutation{Kind: KindEnv, Env: vars})
}

func single(m Mutation) Batch {
	return Batch{mutations: []Mutation{m}}
}
