// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package pump

import (
	"sync"

	"github.com/hrissan/tlspump/circularbuf"
	"github.com/hrissan/tlspump/pumperrors"
	"github.com/hrissan/tlspump/pumpstats"
)

// Driver serializes transport data notifications and application requests
// into a single stream of state machine invocations, then dispatches the
// resulting action lists to the visitor.
//
// All bookkeeping is linearized by a single mutex. The mutex is held only
// across the small bookkeeping sections, never across a state machine
// invocation or a visitor call, so visitors and state machines may freely
// reenter the driver from the pump's goroutine.
//
// Lifetime: the external owner holds one implicit token from construction,
// the pump loop holds one token for the duration of its run (including
// across a suspended state machine future). Destroy drops the owner's
// token, the last token to drop runs teardown.
type Driver struct {
	machine    StateMachine
	state      StateSnapshot
	visitor    Visitor
	readBuffer *ReadBuffer
	stats      pumpstats.Stats
	onTeardown func() // called exactly once, after the last token drops

	// variables below mu are protected by mu
	mu      sync.Mutex
	pending circularbuf.Buffer[pendingEvent]

	// no socket data to consume until the next NewTransportData;
	// while false, socket data is fed to the state machine ahead of
	// queued application events
	waitingForData bool
	// a state machine future is outstanding or an action is being visited
	actionProcessing bool
	// a visitor call is on the stack
	visiting bool
	// the pump loop is active on some goroutine
	pumping bool

	externalError bool
	errorReason   error

	tokens    int
	destroyed bool // owner handle released
	tornDown  bool
}

// onTeardown may be nil. If opts is nil, defaults with a quiet stats log
// are used.
func NewDriver(opts *Options, machine StateMachine, state StateSnapshot, visitor Visitor,
	readBuffer *ReadBuffer, onTeardown func()) *Driver {
	if opts == nil {
		opts = DefaultOptions(pumpstats.NewStatsLog())
	}
	if err := opts.Validate(); err != nil {
		panic("invalid driver options: " + err.Error())
	}
	d := &Driver{
		machine:        machine,
		state:          state,
		visitor:        visitor,
		readBuffer:     readBuffer,
		stats:          opts.Stats,
		onTeardown:     onTeardown,
		waitingForData: true,
		tokens:         1, // owner's token
	}
	if opts.Preallocate {
		d.pending.Reserve(opts.PendingEventsReserve)
	}
	return d
}

// NewTransportData signals that the transport appended bytes to the read
// buffer. Clears waiting-for-data and enters the pump. Transport data is
// a standing signal, not a queued value: the state machine is invoked on
// the buffer repeatedly until some visitor calls WaitForData.
func (d *Driver) NewTransportData() {
	d.mu.Lock()
	if d.tornDown {
		d.mu.Unlock()
		return
	}
	d.waitingForData = false
	d.stats.EventEnqueued(eventTransportData.String())
	d.pumpLocked()
}

// WaitForData asks the pump to stop invoking the state machine for socket
// data until the next NewTransportData. Valid while visiting an action
// produced by a socket data event.
func (d *Driver) WaitForData() {
	d.mu.Lock()
	d.waitingForData = true
	d.mu.Unlock()
}

func (d *Driver) AppWrite(w AppWrite) {
	d.enqueue(pendingEvent{kind: eventAppWrite, data: w.Data, callback: w.Callback})
}

func (d *Driver) EarlyAppWrite(w EarlyAppWrite) {
	d.enqueue(pendingEvent{kind: eventEarlyAppWrite, data: w.Data, callback: w.Callback})
}

func (d *Driver) WriteNewSessionTicket(t WriteNewSessionTicket) {
	d.enqueue(pendingEvent{kind: eventWriteNewSessionTicket, appToken: t.AppToken})
}

func (d *Driver) AppClose() {
	d.enqueue(pendingEvent{kind: eventAppClose})
}

func (d *Driver) AppCloseImmediate() {
	d.enqueue(pendingEvent{kind: eventAppCloseImmediate})
}

// MoveToErrorState stamps the driver as externally errored and drains the
// pending queue, failing every pending write callback with reason. It does
// not interrupt an action batch already being dispatched, and it does not
// touch the state machine's own state tag, so InErrorState stays false
// unless the state machine itself transitioned.
func (d *Driver) MoveToErrorState(reason error) {
	d.mu.Lock()
	if d.tornDown || d.externalError {
		d.mu.Unlock()
		return
	}
	d.externalError = true
	d.errorReason = reason
	drained := d.takePendingLocked()
	d.mu.Unlock()
	d.stats.ErrorEntered(reason)
	d.failPending(drained, reason)
}

// Destroy releases the external owner's lifetime token. If the pump is
// mid-batch or a state machine future is outstanding, actual teardown is
// deferred until that activation unwinds.
func (d *Driver) Destroy() {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return
	}
	d.destroyed = true
	d.releaseTokenLocked()
}

// InErrorState reports whether the state machine's own tag is Error and no
// action from the transitioning batch is currently being visited.
func (d *Driver) InErrorState() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.StateTag() == StateError && !d.visiting
}

// InTerminalState reports whether no further events will enter the state
// machine: the state tag is Error or Closed, or MoveToErrorState was called.
func (d *Driver) InTerminalState() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.terminalLocked()
}

// ActionProcessing reports whether a state machine future is outstanding or
// an action is being visited.
func (d *Driver) ActionProcessing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.actionProcessing
}

func (d *Driver) terminalLocked() bool {
	if d.externalError {
		return true
	}
	tag := d.state.StateTag()
	return tag == StateError || tag == StateClosed
}

func (d *Driver) rejectReasonLocked() error {
	if d.tornDown {
		return pumperrors.ErrWriteRejectedDestroyed
	}
	if d.errorReason != nil {
		return d.errorReason
	}
	if d.state.StateTag() == StateClosed {
		return pumperrors.ErrDriverClosed
	}
	return pumperrors.ErrWriteRejectedTerminal
}

func (d *Driver) enqueue(ev pendingEvent) {
	d.mu.Lock()
	if d.tornDown || d.terminalLocked() {
		reason := d.rejectReasonLocked()
		cb := ev.callback
		d.mu.Unlock()
		d.stats.EventRejected(ev.kind.String(), reason)
		if cb != nil {
			cb.WriteErr(0, reason)
		}
		return
	}
	d.stats.EventEnqueued(ev.kind.String())
	d.pending.PushBack(ev)
	d.pumpLocked()
}

// pumpLocked enters the pump loop unless one is already active above us.
// mu must be held, released on return.
func (d *Driver) pumpLocked() {
	if d.pumping || d.actionProcessing {
		// the outer activation will observe the new queue entry
		d.mu.Unlock()
		return
	}
	d.pumping = true
	d.tokens++ // pump's token, released when the loop unwinds to idle
	d.runLocked()
}

// runLocked is the explicit pump loop: dequeue event, invoke the state
// machine, dispatch resulting actions, repeat. Explicitly iterative so an
// unbounded run of zero-action events does not grow the stack.
// mu must be held, released on return.
func (d *Driver) runLocked() {
	for {
		if d.terminalLocked() {
			drained := d.takePendingLocked()
			reason := d.rejectReasonLocked()
			if len(drained) != 0 {
				d.mu.Unlock()
				d.failPending(drained, reason)
				d.mu.Lock()
			}
			break
		}
		var ev pendingEvent
		if !d.waitingForData {
			// socket data is a standing signal and predates anything
			// queued after it, it stays first until WaitForData
			ev = pendingEvent{kind: eventTransportData}
		} else if d.pending.Len() != 0 {
			ev = d.pending.PopFront()
		} else {
			break // idle
		}
		d.actionProcessing = true
		d.mu.Unlock()

		fut := d.invoke(ev)
		if fut == nil {
			// capability not implemented by the state machine
			d.MoveToErrorState(pumperrors.ErrCapabilityNotImplemented)
			fut = Ready(nil)
		}
		actions, done := fut.Poll()
		if !done {
			d.mu.Lock()
			d.pumping = false
			d.mu.Unlock()
			// the pump token is retained while the future is
			// outstanding, futureResolved picks the loop back up
			fut.Notify(d.futureResolved)
			return
		}
		d.visitActions(actions)

		d.mu.Lock()
		d.actionProcessing = false
	}
	d.pumping = false
	d.releaseTokenLocked()
}

// futureResolved continues the pump after an asynchronously resolved state
// machine future. Runs on whatever goroutine resolved the future, as a
// fresh activation, not a nested one.
func (d *Driver) futureResolved(actions Actions) {
	d.visitActions(actions)
	d.mu.Lock()
	d.actionProcessing = false
	d.pumping = true
	d.runLocked()
}

func (d *Driver) invoke(ev pendingEvent) Future {
	switch ev.kind {
	case eventTransportData:
		return d.machine.ProcessSocketData(d.state, d.readBuffer)
	case eventAppWrite:
		return d.machine.ProcessAppWrite(d.state, AppWrite{Data: ev.data, Callback: ev.callback})
	case eventEarlyAppWrite:
		return d.machine.ProcessEarlyAppWrite(d.state, EarlyAppWrite{Data: ev.data, Callback: ev.callback})
	case eventWriteNewSessionTicket:
		return d.machine.ProcessWriteNewSessionTicket(d.state, WriteNewSessionTicket{AppToken: ev.appToken})
	case eventAppClose:
		return d.machine.ProcessAppClose(d.state)
	case eventAppCloseImmediate:
		return d.machine.ProcessAppCloseImmediate(d.state)
	}
	panic("must be never")
}

// visitActions dispatches one batch in list order. The pump's token keeps
// the driver alive for the whole batch even if a visitor calls Destroy,
// so every action of the batch is delivered.
func (d *Driver) visitActions(actions Actions) {
	for _, action := range actions {
		d.mu.Lock()
		d.visiting = true
		d.mu.Unlock()
		d.stats.ActionVisited(action)
		d.visitor.Visit(action)
		d.mu.Lock()
		d.visiting = false
		d.mu.Unlock()
	}
}

// mu must be held, stays held
func (d *Driver) takePendingLocked() []pendingEvent {
	if d.pending.Len() == 0 {
		return nil
	}
	drained := make([]pendingEvent, 0, d.pending.Len())
	for d.pending.Len() != 0 {
		drained = append(drained, d.pending.PopFront())
	}
	return drained
}

// mu must NOT be held, callbacks may reenter the driver
func (d *Driver) failPending(drained []pendingEvent, reason error) {
	for _, ev := range drained {
		if ev.callback != nil {
			d.stats.PendingWriteFailed(ev.kind.String(), reason)
			ev.callback.WriteErr(0, reason)
		}
	}
}

// mu must be held, released on return
func (d *Driver) releaseTokenLocked() {
	d.tokens--
	if d.tokens != 0 || d.tornDown {
		d.mu.Unlock()
		return
	}
	d.tornDown = true
	d.pending.Clear()
	onTeardown := d.onTeardown
	d.onTeardown = nil
	d.mu.Unlock()
	d.stats.DriverDestroyed()
	if onTeardown != nil {
		onTeardown()
	}
}
