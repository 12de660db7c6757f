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
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := map[string]any{"step": 3, "message": "compiling M"}
	require.NoError(t, WriteFrame(&buf, TagProgress, payload))

	frame, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, TagProgress, frame.Tag)

	var back struct {
		Step    int    `json:"step"`
		Message string `json:"message"`
	}
	require.NoError(t, frame.Decode(&back))
	assert.Equal(t, 3, back.Step)
	assert.Equal(t, "compiling M", back.Message)
}

func TestFrame_BareShutdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, TagShutdown, nil))

	frame, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, TagShutdown, frame.Tag)
	assert.Empty(t, frame.Payload)
}

func TestFrame_CleanEOFAtBoundary(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader(nil))
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrame_PartialPrefixIsWorkerGone(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0x00, 0x00}))
	assert.ErrorIs(t, err, ErrWorkerGone)
}

func TestFrame_TruncatedPayloadIsWorkerGone(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, TagResult, map[string]string{"k": "v"}))
	truncated := buf.Bytes()[:buf.Len()-3]

	_, err := ReadFrame(bytes.NewReader(truncated))
	assert.ErrorIs(t, err, ErrWorkerGone)
}

func TestFrame_ZeroLengthIsProtocolViolation(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0, 0, 0, 0}))
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestFrame_AbsurdLengthIsProtocolViolation(t *testing.T) {
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], 1<<31)
	_, err := ReadFrame(bytes.NewReader(prefix[:]))
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestFrame_UnknownTagIsProtocolViolation(t *testing.T) {
	raw := []byte{0, 0, 0, 1, 0x7e}
	_, err := ReadFrame(bytes.NewReader(raw))
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestFrame_DecodeFailureIsProtocolViolation(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, TagResult, "just a string"))
	frame, err := ReadFrame(&buf)
	require.NoError(t, err)

	var target struct{ N int }
	assert.ErrorIs(t, frame.Decode(&target), ErrProtocolViolation)
}
