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

// Progress is one step of ongoing work: a counter starting at 1 plus a
// free-form message. Step numbers within a request are monotonically
// non-decreasing.
type Progress struct {
	Step    int    `json:"step"`
	Message string `json:"message,omitempty"`
}

// NewProgress returns the first step with the given message.
func NewProgress(message string) Progress {
	return Progress{Step: 1, Message: message}
}

// Update advances to the next step with a new message.
func (p Progress) Update(message string) Progress {
	return Progress{Step: p.Step + 1, Message: message}
}
