// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

// Reference state machine: a deliberately simplified one-flight handshake
// (ephemeral X25519 key shares, no certificates, no transcript) that
// exists to give the driver something real to pump. Not a conformant
// TLS 1.3 implementation.

package refsm

import (
	"golang.org/x/crypto/curve25519"

	"github.com/hrissan/tlspump/pump"
	"github.com/hrissan/tlspump/pumperrors"
	"github.com/hrissan/tlspump/recordcipher"
)

// Machine is stateless, everything lives in the State snapshot the
// driver passes back with every invocation.
type Machine struct{}

func NewMachine() *Machine { return &Machine{} }

var _ pump.StateMachine = &Machine{}

func (m *Machine) ProcessSocketData(state pump.StateSnapshot, rb *pump.ReadBuffer) pump.Future {
	s := state.(*State)
	acts, err := s.clientHello()
	if err != nil {
		return pump.Ready(s.failActions(acts, err))
	}
	for {
		rec, ok, err := readRecord(rb)
		if err != nil {
			return pump.Ready(s.failActions(acts, err))
		}
		if !ok {
			return pump.Ready(append(acts, WaitForData{}))
		}
		more, err := s.onRecord(rec)
		acts = append(acts, more...)
		if err != nil {
			return pump.Ready(s.failActions(acts, err))
		}
		if s.StateTag() == pump.StateClosed {
			return pump.Ready(acts)
		}
	}
}

func (m *Machine) ProcessAppWrite(state pump.StateSnapshot, w pump.AppWrite) pump.Future {
	s := state.(*State)
	return s.processWrite(w.Data, w.Callback)
}

// Simplified 0-RTT: early writes are queued like pre-handshake writes and
// flushed under the ordinary traffic keys once the handshake finishes.
func (m *Machine) ProcessEarlyAppWrite(state pump.StateSnapshot, w pump.EarlyAppWrite) pump.Future {
	s := state.(*State)
	return s.processWrite(w.Data, w.Callback)
}

func (m *Machine) ProcessWriteNewSessionTicket(state pump.StateSnapshot, t pump.WriteNewSessionTicket) pump.Future {
	s := state.(*State)
	if !s.roleServer {
		return nil // only the server role mints tickets
	}
	if !s.handshakeDone {
		return pump.Ready(s.failActions(nil, pumperrors.ErrTicketBeforeHandshake))
	}
	msg := append([]byte{msgNewSessionTicket}, t.AppToken...)
	return pump.Ready(pump.Actions{
		WriteToTransport{Data: sealedRecord(s.send, recordTypeHandshake, msg)},
		NewSessionTicketWritten{AppToken: t.AppToken},
	})
}

func (m *Machine) ProcessAppClose(state pump.StateSnapshot) pump.Future {
	s := state.(*State)
	s.failQueuedWrites(pumperrors.ErrDriverClosed)
	s.setTag(pump.StateClosed)
	var alert []byte
	if s.send != nil {
		alert = sealedRecord(s.send, recordTypeAlert, []byte{alertCloseNotify})
	} else {
		alert = plainRecord(recordTypeAlert, []byte{alertCloseNotify})
	}
	return pump.Ready(pump.Actions{WriteToTransport{Data: alert}, CloseTransport{}})
}

func (m *Machine) ProcessAppCloseImmediate(state pump.StateSnapshot) pump.Future {
	s := state.(*State)
	s.failQueuedWrites(pumperrors.ErrDriverClosed)
	s.setTag(pump.StateClosed)
	return pump.Ready(pump.Actions{CloseTransport{}})
}

func (s *State) processWrite(data []byte, cb pump.WriteCallback) pump.Future {
	if !s.handshakeDone {
		// queue first so an error path fails this write's callback too
		s.queued = append(s.queued, queuedWrite{data: data, callback: cb})
		acts, err := s.clientHello()
		if err != nil {
			return pump.Ready(s.failActions(acts, err))
		}
		return pump.Ready(acts)
	}
	return pump.Ready(s.sealAppWrite(data, cb))
}

// clientHello emits the client's key share once, on whatever event comes
// first. Servers never speak first.
func (s *State) clientHello() (pump.Actions, error) {
	if s.roleServer || s.helloSent {
		return nil, nil
	}
	pub, err := s.generateKey()
	if err != nil {
		return nil, err
	}
	s.helloSent = true
	body := append([]byte{msgKeyShare}, pub...)
	return pump.Actions{WriteToTransport{Data: plainRecord(recordTypeHandshake, body)}}, nil
}

func (s *State) failActions(acts pump.Actions, err error) pump.Actions {
	s.failQueuedWrites(err)
	s.setTag(pump.StateError)
	return append(acts, ReportError{Err: err})
}

func (s *State) failQueuedWrites(err error) {
	for _, qw := range s.queued {
		if qw.callback != nil {
			qw.callback.WriteErr(0, err)
		}
	}
	s.queued = nil
}

func (s *State) onRecord(rec record) (pump.Actions, error) {
	if s.recv != nil {
		plain, err := s.recv.Open(rec.body, rec.header[:])
		if err != nil {
			return nil, err
		}
		switch rec.typ {
		case recordTypeAppData:
			return pump.Actions{DeliverAppData{Data: plain}}, nil
		case recordTypeHandshake:
			return s.onHandshakeMessage(plain)
		case recordTypeAlert:
			return s.onAlert(plain)
		}
		panic("must be never")
	}
	switch rec.typ {
	case recordTypeHandshake:
		return s.onPlaintextHandshake(rec.body)
	case recordTypeAlert:
		return s.onAlert(rec.body)
	case recordTypeAppData:
		return nil, pumperrors.ErrDataBeforeHandshake
	}
	panic("must be never")
}

func (s *State) onAlert(body []byte) (pump.Actions, error) {
	if len(body) != 1 {
		return nil, pumperrors.WarnAlertBodyParsing
	}
	if body[0] != alertCloseNotify {
		return nil, pumperrors.ErrPeerClosedAbruptly
	}
	s.setTag(pump.StateClosed)
	return pump.Actions{CloseTransport{}}, nil
}

func (s *State) onHandshakeMessage(body []byte) (pump.Actions, error) {
	if len(body) < 1 {
		return nil, pumperrors.ErrHandshakeMessageUnknown
	}
	if body[0] != msgNewSessionTicket {
		return nil, pumperrors.ErrHandshakeMessageUnknown
	}
	token := append([]byte{}, body[1:]...)
	return pump.Actions{SessionTicketReceived{AppToken: token}}, nil
}

func (s *State) onPlaintextHandshake(body []byte) (pump.Actions, error) {
	if len(body) < 1 || body[0] != msgKeyShare {
		return nil, pumperrors.ErrHandshakeMessageUnknown
	}
	if len(body) != 1+32 {
		return nil, pumperrors.ErrKeyShareLength
	}
	if s.handshakeDone {
		return nil, pumperrors.ErrUnexpectedKeyShare
	}
	peerPub := body[1:]
	if s.roleServer {
		pub, err := s.generateKey()
		if err != nil {
			return nil, err
		}
		s.helloSent = true
		reply := append([]byte{msgKeyShare}, pub...)
		acts := pump.Actions{WriteToTransport{Data: plainRecord(recordTypeHandshake, reply)}}
		more, err := s.deriveKeys(peerPub)
		if err != nil {
			return acts, err
		}
		return append(acts, more...), nil
	}
	if !s.helloSent {
		return nil, pumperrors.ErrUnexpectedKeyShare // server never speaks first
	}
	return s.deriveKeys(peerPub)
}

func (s *State) generateKey() (pub []byte, err error) {
	s.rnd.Read(s.priv[:])
	pub, err = curve25519.X25519(s.priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, pumperrors.ErrKeyExchangeFailed
	}
	return pub, nil
}

func (s *State) deriveKeys(peerPub []byte) (pump.Actions, error) {
	shared, err := curve25519.X25519(s.priv[:], peerPub)
	if err != nil {
		return nil, pumperrors.ErrKeyExchangeFailed
	}
	clientSecret := recordcipher.ClientTrafficSecret(shared)
	serverSecret := recordcipher.ServerTrafficSecret(shared)
	if s.roleServer {
		s.send = recordcipher.New(serverSecret)
		s.recv = recordcipher.New(clientSecret)
	} else {
		s.send = recordcipher.New(clientSecret)
		s.recv = recordcipher.New(serverSecret)
	}
	s.handshakeDone = true
	acts := pump.Actions{HandshakeComplete{}}
	for _, qw := range s.queued {
		acts = append(acts, s.sealAppWrite(qw.data, qw.callback)...)
	}
	s.queued = nil
	return acts, nil
}

// sealAppWrite chunks oversized writes into several records, the
// completion callback rides on the last chunk.
func (s *State) sealAppWrite(data []byte, cb pump.WriteCallback) pump.Actions {
	var acts pump.Actions
	for {
		chunk := data
		if len(chunk) > maxPlaintextRecordLen {
			chunk = chunk[:maxPlaintextRecordLen]
		}
		data = data[len(chunk):]
		var chunkCB pump.WriteCallback
		if len(data) == 0 {
			chunkCB = cb
		}
		acts = append(acts, WriteToTransport{
			Data:     sealedRecord(s.send, recordTypeAppData, chunk),
			Callback: chunkCB,
		})
		if len(data) == 0 {
			return acts
		}
	}
}
