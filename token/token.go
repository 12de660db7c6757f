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

// Package token implements the process-wide session version counter.
//
// Every session remembers the counter value it last observed; mutating
// operations compare that remembered value against the counter and fail
// with ErrStaleSession when another session transition happened in
// between. The counter is linear across all sessions in the process, so
// a handle that missed any intervening mutation is always detectable
// without per-session locks.
package token

import (
	"errors"
	"fmt"
	"sync"
)

// ErrStaleSession reports that a session handle no longer matches the
// process-wide version counter. It is never retried internally.
var ErrStaleSession = errors.New("session state token mismatch")

// Token is a non-negative session version. The zero Token is the version
// every fresh process starts at.
type Token uint64

// Cell is a mutual-exclusion cell holding a monotonic Token. The counter
// never decreases and never resets within a process lifetime.
type Cell struct {
	mu      sync.Mutex
	current Token
}

// processCell is the single process-wide counter gating all sessions.
var processCell = NewCell()

// NewCell returns an independent cell starting at zero. Production code
// shares ProcessCell; tests construct their own to stay isolated.
func NewCell() *Cell {
	return &Cell{}
}

// ProcessCell returns the process-wide token cell.
func ProcessCell() *Cell {
	return processCell
}

// Current returns the cell's current token.
func (c *Cell) Current() Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Check fails with ErrStaleSession unless t is the cell's current token.
func (c *Cell) Check(t Token) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.check(t)
}

// Advance atomically increments the counter and returns the new value.
func (c *Cell) Advance() Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current++
	return c.current
}

// Mutate runs a session transition under the cell's lock: check t, run
// effect, advance. The returned token is the session's new version. If
// effect fails the counter is left untouched and the old token stays
// valid.
func (c *Cell) Mutate(t Token, effect func() error) (Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(t); err != nil {
		return t, err
	}
	if err := effect(); err != nil {
		return t, err
	}
	c.current++
	return c.current, nil
}

func (c *Cell) check(t Token) error {
	if t != c.current {
		return fmt.Errorf("%w: have %d, current %d", ErrStaleSession, t, c.current)
	}
	return nil
}
