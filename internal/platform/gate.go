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

import "sync"

// Gate serialises operations that mutate process-wide state (working
// directory, environment, stdio redirection) against ordinary session
// work. Ordinary operations hold a shared slot; a mutating operation
// holds the gate exclusively.
//
// Admission: no new shared slot is granted while any thread is waiting
// for exclusive access, and exclusive access waits until all shared
// slots drain. This keeps CWD-sensitive work from interleaving with
// CWD-agnostic work.
type Gate struct {
	mu        sync.Mutex
	cond      *sync.Cond
	shared    int
	exclusive bool
	waiting   int
}

// processGate is the process-wide gate shared by all sessions.
var processGate = NewGate()

func NewGate() *Gate {
	g := &Gate{}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// ProcessGate returns the gate guarding process-wide mutable state.
func ProcessGate() *Gate {
	return processGate
}

// Shared runs fn while holding a shared slot.
func (g *Gate) Shared(fn func()) {
	g.mu.Lock()
	for g.exclusive || g.waiting > 0 {
		g.cond.Wait()
	}
	g.shared++
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.shared--
		g.cond.Broadcast()
		g.mu.Unlock()
	}()
	fn()
}

// Exclusive runs fn with sole execution rights.
func (g *Gate) Exclusive(fn func()) {
	g.mu.Lock()
	g.waiting++
	for g.exclusive || g.shared > 0 {
		g.cond.Wait()
	}
	g.waiting--
	g.exclusive = true
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.exclusive = false
		g.cond.Broadcast()
		g.mu.Unlock()
	}()
	fn()
}
