// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package pump

import (
	"sync"

	"github.com/hrissan/tlspump/circularbuf"
)

// ReadBuffer is the byte queue shared between the transport and the state
// machine. The transport appends under the buffer's lock and then calls
// Driver.NewTransportData, the state machine consumes bytes during
// ProcessSocketData. The driver itself never reads bytes from it.
type ReadBuffer struct {
	mu  sync.Mutex
	buf circularbuf.Buffer[byte]
}

func (rb *ReadBuffer) Lock()   { rb.mu.Lock() }
func (rb *ReadBuffer) Unlock() { rb.mu.Unlock() }

func (rb *ReadBuffer) LenLocked() int { return rb.buf.Len() }

func (rb *ReadBuffer) ReserveLocked(capacity int) { rb.buf.Reserve(capacity) }

func (rb *ReadBuffer) AppendLocked(data []byte) { rb.buf.PushBackSlice(data) }

// PeekLocked copies up to len(dst) bytes starting at offset without
// consuming them, and returns how many were copied.
func (rb *ReadBuffer) PeekLocked(dst []byte, offset int) int {
	n := rb.buf.Len() - offset
	if n <= 0 {
		return 0
	}
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = rb.buf.Index(offset + i)
	}
	return n
}

func (rb *ReadBuffer) DiscardLocked(n int) { rb.buf.PopFrontN(n) }
