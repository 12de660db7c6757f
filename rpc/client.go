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
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// Client speaks the parent side of a worker conversation. A request
// elicits zero or more Progress frames followed by exactly one Result.
// At most one request may be in flight; Call enforces that.
type Client struct {
	writeMu   sync.Mutex
	w         io.Writer
	r         io.Reader
	inFlight  atomic.Bool
	cancelled atomic.Bool
}

// NewClient wraps the worker's stdin (w) and stdout (r).
func NewClient(r io.Reader, w io.Writer) *Client {
	return &Client{r: r, w: w}
}

// Call sends a request and blocks until the terminal Result frame,
// decoding it into result. onProgress is invoked per Progress frame, in
// emission order, from the calling goroutine. After cancellation, any
// remaining frames of the aborted request are discarded and Call
// returns ErrCancelled.
func (c *Client) Call(request any, onProgress func(Frame), result any) error {
	if !c.inFlight.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: request already in flight", ErrProtocolViolation)
	}
	defer c.inFlight.Store(false)

	if err := c.send(TagRequest, request); err != nil {
		if c.cancelled.Load() {
			// Cancel raced ahead of the request and the worker is
			// already winding down.
			return ErrCancelled
		}
		return err
	}

	for {
		frame, err := ReadFrame(c.r)
		if err != nil {
			if c.cancelled.Load() {
				return ErrCancelled
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: stream closed mid-request", ErrWorkerGone)
			}
			return err
		}
		if c.cancelled.Load() {
			// Frames of the aborted request are discarded.
			continue
		}
		switch frame.Tag {
		case TagProgress:
			if onProgress != nil {
				onProgress(frame)
			}
		case TagResult:
			if result == nil {
				return nil
			}
			return frame.Decode(result)
		case TagShutdown:
			return ErrCancelled
		default:
			return fmt.Errorf("%w: unexpected tag 0x%02x from worker", ErrProtocolViolation, frame.Tag)
		}
	}
}

// Cancel aborts the in-flight request by sending Shutdown. The blocked
// Call returns ErrCancelled once the worker winds down.
func (c *Client) Cancel() error {
	c.cancelled.Store(true)
	return c.send(TagShutdown, nil)
}

// Shutdown requests a clean worker exit. Only valid while no request is
// in flight.
func (c *Client) Shutdown() error {
	return c.send(TagShutdown, nil)
}

// Cancelled reports whether Cancel was called on this client.
func (c *Client) Cancelled() bool {
	return c.cancelled.Load()
}

func (c *Client) send(tag byte, payload any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteFrame(c.w, tag, payload)
}
