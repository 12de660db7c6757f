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

import (
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// handleStatus reports the worker's vitals. Metrics that cannot be
// gathered degrade to zero rather than failing the request.
func (w *Worker) handleStatus() *Result {
	status := Status{
		Pid:           int32(os.Getpid()),
		UptimeSeconds: time.Since(w.started).Seconds(),
	}
	if proc, err := process.NewProcess(status.Pid); err == nil {
		if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
			status.RSSBytes = mem.RSS
		}
		if cpu, err := proc.CPUPercent(); err == nil {
			status.CPUPercent = cpu
		}
	}
	return &Result{Status: &status}
}
