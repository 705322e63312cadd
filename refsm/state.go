// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package refsm

import (
	"sync/atomic"

	"github.com/hrissan/tlspump/pump"
	"github.com/hrissan/tlspump/recordcipher"
	"github.com/hrissan/tlspump/tlsrand"
)

type queuedWrite struct {
	data     []byte
	callback pump.WriteCallback
}

// State is this machine's state snapshot. The tag is atomic because the
// driver reads it under its own lock while a process call may be
// mutating it, everything else is touched only from inside process
// calls, which the driver serializes.
type State struct {
	tag atomic.Int32

	roleServer bool
	rnd        tlsrand.Rand

	priv          [32]byte
	helloSent     bool
	handshakeDone bool
	send          *recordcipher.RecordCipher
	recv          *recordcipher.RecordCipher

	// writes submitted before the handshake finished, flushed in
	// submission order right after it does
	queued []queuedWrite
}

var _ pump.StateSnapshot = &State{}

func NewClientState(rnd tlsrand.Rand) *State {
	return &State{rnd: rnd}
}

func NewServerState(rnd tlsrand.Rand) *State {
	return &State{roleServer: true, rnd: rnd}
}

func (s *State) StateTag() pump.StateTag { return pump.StateTag(s.tag.Load()) }

func (s *State) HandshakeDone() bool { return s.handshakeDone }

func (s *State) setTag(tag pump.StateTag) { s.tag.Store(int32(tag)) }
