// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package refsm_test

import (
	"bytes"
	"testing"

	"github.com/hrissan/tlspump/pump"
	"github.com/hrissan/tlspump/pumpstats"
	"github.com/hrissan/tlspump/refsm"
	"github.com/hrissan/tlspump/tlsrand"
)

// two drivers wired back to back through in-memory read buffers
type endpoint struct {
	t      *testing.T
	driver *pump.Driver
	rb     *pump.ReadBuffer
	peer   *endpoint

	handshakes int
	delivered  [][]byte
	ticketsTx  [][]byte
	ticketsRx  [][]byte
	closed     int
	errs       []error
}

func (e *endpoint) Visit(action pump.Action) {
	switch a := action.(type) {
	case refsm.WriteToTransport:
		e.peer.rb.Lock()
		e.peer.rb.AppendLocked(a.Data)
		e.peer.rb.Unlock()
		e.peer.driver.NewTransportData()
		if a.Callback != nil {
			a.Callback.WriteSuccess()
		}
	case refsm.DeliverAppData:
		e.delivered = append(e.delivered, append([]byte{}, a.Data...))
	case refsm.HandshakeComplete:
		e.handshakes++
	case refsm.NewSessionTicketWritten:
		e.ticketsTx = append(e.ticketsTx, append([]byte{}, a.AppToken...))
	case refsm.SessionTicketReceived:
		e.ticketsRx = append(e.ticketsRx, append([]byte{}, a.AppToken...))
	case refsm.CloseTransport:
		e.closed++
	case refsm.ReportError:
		e.errs = append(e.errs, a.Err)
	case refsm.WaitForData:
		e.driver.WaitForData()
	default:
		e.t.Fatalf("unexpected action %T", action)
	}
}

type writeCB struct {
	successes int
	errs      []error
}

func (c *writeCB) WriteSuccess() { c.successes++ }

func (c *writeCB) WriteErr(n int, err error) { c.errs = append(c.errs, err) }

func newPair(t *testing.T) (client, server *endpoint) {
	machine := refsm.NewMachine()
	client = &endpoint{t: t, rb: &pump.ReadBuffer{}}
	server = &endpoint{t: t, rb: &pump.ReadBuffer{}}
	client.peer = server
	server.peer = client
	opts := pump.DefaultOptions(pumpstats.NewStatsLog())
	client.driver = pump.NewDriver(opts, machine, refsm.NewClientState(tlsrand.FixedRand()), client, client.rb, nil)
	server.driver = pump.NewDriver(opts, machine, refsm.NewServerState(tlsrand.FixedRand()), server, server.rb, nil)
	return client, server
}

func TestHandshakeAndEcho(t *testing.T) {
	client, server := newPair(t)
	var cb writeCB
	client.driver.AppWrite(pump.AppWrite{Data: []byte("hello"), Callback: &cb})
	if client.handshakes != 1 || server.handshakes != 1 {
		t.Fatalf("handshake must complete on both sides: client %d server %d",
			client.handshakes, server.handshakes)
	}
	if len(server.delivered) != 1 || !bytes.Equal(server.delivered[0], []byte("hello")) {
		t.Fatalf("server must receive the pre-handshake write after the handshake: %q", server.delivered)
	}
	if cb.successes != 1 || len(cb.errs) != 0 {
		t.Fatalf("write callback must succeed exactly once: %d %v", cb.successes, cb.errs)
	}
	server.driver.AppWrite(pump.AppWrite{Data: []byte("echo: hello")})
	if len(client.delivered) != 1 || !bytes.Equal(client.delivered[0], []byte("echo: hello")) {
		t.Fatalf("client must receive the echo: %q", client.delivered)
	}
}

func TestEarlyWriteQueuedUntilHandshake(t *testing.T) {
	client, server := newPair(t)
	var cb writeCB
	client.driver.EarlyAppWrite(pump.EarlyAppWrite{Data: []byte("0rtt"), Callback: &cb})
	if len(server.delivered) != 1 || !bytes.Equal(server.delivered[0], []byte("0rtt")) {
		t.Fatalf("early write must arrive after the handshake: %q", server.delivered)
	}
	if cb.successes != 1 {
		t.Fatalf("early write callback must succeed exactly once, got %d", cb.successes)
	}
}

func TestLargeWriteChunked(t *testing.T) {
	client, server := newPair(t)
	payload := make([]byte, 40000)
	for i := range payload {
		payload[i] = byte(i)
	}
	var cb writeCB
	client.driver.AppWrite(pump.AppWrite{Data: payload, Callback: &cb})
	if len(server.delivered) != 3 {
		t.Fatalf("40000 bytes must arrive as 3 records, got %d", len(server.delivered))
	}
	var got []byte
	for _, chunk := range server.delivered {
		got = append(got, chunk...)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("reassembled payload mismatch")
	}
	if cb.successes != 1 {
		t.Fatalf("callback must fire once for the whole write, got %d", cb.successes)
	}
}

func TestSessionTicket(t *testing.T) {
	client, server := newPair(t)
	client.driver.AppWrite(pump.AppWrite{Data: []byte("hi")}) // drives the handshake
	server.driver.WriteNewSessionTicket(pump.WriteNewSessionTicket{AppToken: []byte("resume me")})
	if len(server.ticketsTx) != 1 || !bytes.Equal(server.ticketsTx[0], []byte("resume me")) {
		t.Fatalf("server must report the minted ticket: %q", server.ticketsTx)
	}
	if len(client.ticketsRx) != 1 || !bytes.Equal(client.ticketsRx[0], []byte("resume me")) {
		t.Fatalf("client must receive the ticket: %q", client.ticketsRx)
	}
}

func TestTicketFromClientIsCapabilityError(t *testing.T) {
	client, server := newPair(t)
	client.driver.AppWrite(pump.AppWrite{Data: []byte("hi")})
	client.driver.WriteNewSessionTicket(pump.WriteNewSessionTicket{AppToken: []byte("nope")})
	if !client.driver.InTerminalState() {
		t.Fatalf("ticket minting from the client role must be a fatal capability error")
	}
	if server.driver.InTerminalState() {
		t.Fatalf("server must be unaffected")
	}
}

func TestGracefulClose(t *testing.T) {
	client, server := newPair(t)
	client.driver.AppWrite(pump.AppWrite{Data: []byte("hi")})
	client.driver.AppClose()
	if client.closed != 1 || server.closed != 1 {
		t.Fatalf("close must reach both transports: client %d server %d",
			client.closed, server.closed)
	}
	if !client.driver.InTerminalState() || !server.driver.InTerminalState() {
		t.Fatalf("both drivers must be terminal after close")
	}
	var cb writeCB
	server.driver.AppWrite(pump.AppWrite{Data: []byte("late"), Callback: &cb})
	if len(cb.errs) != 1 {
		t.Fatalf("write after close must be rejected via the callback")
	}
}

func TestCloseImmediateSendsNoAlert(t *testing.T) {
	client, server := newPair(t)
	client.driver.AppWrite(pump.AppWrite{Data: []byte("hi")})
	client.driver.AppCloseImmediate()
	if client.closed != 1 {
		t.Fatalf("abortive close must close the local transport")
	}
	if server.closed != 0 {
		t.Fatalf("abortive close must not notify the peer")
	}
}

func TestGarbageMovesToError(t *testing.T) {
	client, server := newPair(t)
	client.driver.AppWrite(pump.AppWrite{Data: []byte("hi")})
	server.rb.Lock()
	server.rb.AppendLocked([]byte{99, 99, 99, 99, 99})
	server.rb.Unlock()
	server.driver.NewTransportData()
	if len(server.errs) != 1 {
		t.Fatalf("garbage record must produce exactly one error report, got %v", server.errs)
	}
	if !server.driver.InErrorState() {
		t.Fatalf("server must be in error state after a garbage record")
	}
}
