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
package rpc

import (
	"io"
	"testing"
	"time"

	"bennypowers.dev/idekit/compile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipePair wires a Client to a scripted worker side.
func pipePair() (client *Client, workerIn io.Reader, workerOut io.Writer, closeOut func()) {
	toWorker, fromClient := io.Pipe()
	toClient, fromWorker := io.Pipe()
	client = NewClient(toClient, fromClient)
	return client, toWorker, fromWorker, func() { fromWorker.Close() }
}

func TestClient_ProgressThenResultOrdering(t *testing.T) {
	client, workerIn, workerOut, _ := pipePair()

	go func() {
		frame, err := ReadFrame(workerIn)
		if err != nil || frame.Tag != TagRequest {
			return
		}
		for step := 1; step <= 3; step++ {
			WriteFrame(workerOut, TagProgress, compile.Progress{Step: step})
		}
		WriteFrame(workerOut, TagResult, map[string]bool{"ok": true})
	}()

	var steps []int
	var result struct {
		OK bool `json:"ok"`
	}
	err := client.Call(map[string]string{"cmd": "compile"}, func(f Frame) {
		var p compile.Progress
		require.NoError(t, f.Decode(&p))
		steps = append(steps, p.Step)
	}, &result)

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, steps)
	assert.True(t, result.OK)
}

func TestClient_SecondInFlightCallRejected(t *testing.T) {
	client, workerIn, workerOut, _ := pipePair()

	release := make(chan struct{})
	go func() {
		ReadFrame(workerIn)
		<-release
		WriteFrame(workerOut, TagResult, map[string]bool{"ok": true})
	}()

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- client.Call(struct{}{}, nil, nil)
	}()

	// Wait until the first call is registered, then try a second.
	for !client.inFlight.Load() {
		time.Sleep(time.Millisecond)
	}
	err := client.Call(struct{}{}, nil, nil)
	assert.ErrorIs(t, err, ErrProtocolViolation)

	close(release)
	assert.NoError(t, <-firstDone)
}

func TestClient_EOFMidRequestIsWorkerGone(t *testing.T) {
	client, workerIn, workerOut, closeOut := pipePair()

	go func() {
		ReadFrame(workerIn)
		WriteFrame(workerOut, TagProgress, compile.Progress{Step: 1})
		closeOut()
	}()

	err := client.Call(struct{}{}, nil, nil)
	assert.ErrorIs(t, err, ErrWorkerGone)
}

func TestClient_CancelDiscardsRemainingFrames(t *testing.T) {
	client, workerIn, workerOut, closeOut := pipePair()

	sawShutdown := make(chan struct{})
	go func() {
		ReadFrame(workerIn) // request
		WriteFrame(workerOut, TagProgress, compile.Progress{Step: 1})
		// Worker notices the shutdown, flushes a stale frame, then exits.
		frame, err := ReadFrame(workerIn)
		if err == nil && frame.Tag == TagShutdown {
			close(sawShutdown)
		}
		WriteFrame(workerOut, TagProgress, compile.Progress{Step: 2})
		closeOut()
	}()

	var calls int
	errCh := make(chan error, 1)
	progressSeen := make(chan struct{}, 1)
	go func() {
		errCh <- client.Call(struct{}{}, func(Frame) {
			calls++
			select {
			case progressSeen <- struct{}{}:
			default:
			}
		}, nil)
	}()

	// Cancel only after the request is demonstrably in flight.
	<-progressSeen
	require.NoError(t, client.Cancel())
	<-sawShutdown

	err := <-errCh
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 1, calls)
}
