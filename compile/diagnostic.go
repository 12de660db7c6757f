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

// Package compile holds the data model shared between the session
// façade and the compiler worker: diagnostics, per-module metadata with
// an explicit-sharing string cache, progress events, and run outcomes.
package compile

import (
	"encoding/json"
	"fmt"
)

// DiagnosticKind discriminates diagnostics on the wire.
type DiagnosticKind int

const (
	// KindError is a compiler-produced error with a source span.
	KindError DiagnosticKind = iota
	// KindWarning is a compiler-produced warning with a source span.
	KindWarning
	// KindMessage is an out-of-band failure without span information.
	KindMessage
)

var kindNames = map[DiagnosticKind]string{
	KindError:   "Error",
	KindWarning: "Warning",
	KindMessage: "message",
}

func (k DiagnosticKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON encodes the kind as its wire name.
func (k DiagnosticKind) MarshalJSON() ([]byte, error) {
	name, ok := kindNames[k]
	if !ok {
		return nil, fmt.Errorf("unknown diagnostic kind %d", int(k))
	}
	return json.Marshal(name)
}

// UnmarshalJSON decodes a wire kind name.
func (k *DiagnosticKind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for kind, n := range kindNames {
		if n == name {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown diagnostic kind %q", name)
}

// Diagnostic is a typed compiler error or warning with a source span,
// or an out-of-band failure. Span fields are 1-based and zero for the
// KindMessage variant, which omits them on the wire.
type Diagnostic struct {
	Kind      DiagnosticKind `json:"kind"`
	File      string         `json:"file,omitempty"`
	StartLine int            `json:"startline,omitempty"`
	StartCol  int            `json:"startcol,omitempty"`
	EndLine   int            `json:"endline,omitempty"`
	EndCol    int            `json:"endcol,omitempty"`
	Message   string         `json:"message"`
}

// SrcError builds a compiler diagnostic anchored to a source span.
func SrcError(kind DiagnosticKind, file string, startLine, startCol, endLine, endCol int, message string) Diagnostic {
	return Diagnostic{
		Kind:      kind,
		File:      file,
		StartLine: startLine,
		StartCol:  startCol,
		EndLine:   endLine,
		EndCol:    endCol,
		Message:   message,
	}
}

// OtherError builds an out-of-band failure diagnostic.
func OtherError(message string) Diagnostic {
	return Diagnostic{Kind: KindMessage, Message: message}
}

// IsSrc reports whether the diagnostic carries span information.
func (d Diagnostic) IsSrc() bool {
	return d.Kind == KindError || d.Kind == KindWarning
}

// IsError reports whether the diagnostic is fatal to the affected
// module (errors and out-of-band failures; warnings are not).
func (d Diagnostic) IsError() bool {
	return d.Kind == KindError || d.Kind == KindMessage
}

func (d Diagnostic) String() string {
	if !d.IsSrc() {
		return d.Message
	}
	return fmt.Sprintf("%s:%d:%d-%d:%d: %s: %s",
		d.File, d.StartLine, d.StartCol, d.EndLine, d.EndCol, d.Kind, d.Message)
}
