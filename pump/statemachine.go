// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package pump

type StateTag uint8

const (
	StateNotError StateTag = iota
	StateClosed
	StateError
)

// StateSnapshot is the driver's read-only view of the state machine state.
// StateTag may be called with the driver's own lock held, implementations
// must not call back into the driver from it.
type StateSnapshot interface {
	StateTag() StateTag
}

// StateMachine maps (state, event) to a future of actions. The driver
// guarantees at most one invocation in flight per driver, and that each
// returned future's actions are dispatched fully before the next
// invocation starts.
//
// Returning Ready(nil) is legal and means "I consumed what I could, call
// me again when more is available or immediately if the queue has other
// events". Returning a nil Future means the capability is not implemented
// by this state machine, the driver treats that as fatal and moves to the
// terminal state.
type StateMachine interface {
	// The transport variant receives the shared read buffer and may
	// consume some, all, or no bytes from it.
	ProcessSocketData(state StateSnapshot, readBuffer *ReadBuffer) Future
	ProcessAppWrite(state StateSnapshot, write AppWrite) Future
	ProcessEarlyAppWrite(state StateSnapshot, write EarlyAppWrite) Future
	ProcessWriteNewSessionTicket(state StateSnapshot, ticket WriteNewSessionTicket) Future
	ProcessAppClose(state StateSnapshot) Future
	ProcessAppCloseImmediate(state StateSnapshot) Future
}
