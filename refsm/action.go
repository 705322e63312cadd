// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package refsm

import "github.com/hrissan/tlspump/pump"

// Closed action set of the reference endpoint. The driver never names
// these, it hands them to the visitor as opaque values.

// WriteToTransport hands a fully framed record to the transport. The
// visitor signals Callback.WriteSuccess after the bytes are written out.
type WriteToTransport struct {
	Data     []byte
	Callback pump.WriteCallback // may be nil
}

// DeliverAppData surfaces decrypted application bytes to the reader.
type DeliverAppData struct {
	Data []byte
}

type HandshakeComplete struct{}

// NewSessionTicketWritten reports that the server minted and sent a
// resumption ticket carrying AppToken.
type NewSessionTicketWritten struct {
	AppToken []byte
}

// SessionTicketReceived surfaces a ticket received by the client.
type SessionTicketReceived struct {
	AppToken []byte
}

type CloseTransport struct{}

type ReportError struct {
	Err error
}

// WaitForData asks the visitor to call Driver.WaitForData: the read
// buffer has no complete record, stop polling until the transport
// signals again.
type WaitForData struct{}
