// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package refsm

import (
	"encoding/binary"

	"github.com/hrissan/tlspump/pump"
	"github.com/hrissan/tlspump/pumperrors"
	"github.com/hrissan/tlspump/recordcipher"
	"github.com/hrissan/tlspump/safecast"
)

// Stream framing follows the TLS 1.3 outer record shape: type, legacy
// version, 16-bit body length. Before traffic keys exist only plaintext
// key_share handshake records and alerts are legal, afterwards every
// record body is AEAD protected under the outer header as additional data.

const (
	recordTypeAlert       = 21
	recordTypeHandshake   = 22
	recordTypeAppData     = 23
	recordHeaderSize      = 5
	maxPlaintextRecordLen = 16384
	maxRecordBodyLen      = maxPlaintextRecordLen + recordcipher.Overhead

	msgKeyShare         = 1
	msgNewSessionTicket = 4

	alertCloseNotify = 0
)

type record struct {
	typ    byte
	header [recordHeaderSize]byte
	body   []byte
}

func putRecordHeader(hdr []byte, typ byte, bodyLen int) {
	hdr[0] = typ
	hdr[1] = 3
	hdr[2] = 4
	binary.BigEndian.PutUint16(hdr[3:recordHeaderSize], safecast.Cast[uint16](bodyLen))
}

func plainRecord(typ byte, body []byte) []byte {
	out := make([]byte, recordHeaderSize, recordHeaderSize+len(body))
	putRecordHeader(out, typ, len(body))
	return append(out, body...)
}

func sealedRecord(send *recordcipher.RecordCipher, typ byte, plaintext []byte) []byte {
	out := make([]byte, recordHeaderSize, recordHeaderSize+len(plaintext)+recordcipher.Overhead)
	putRecordHeader(out, typ, len(plaintext)+recordcipher.Overhead)
	return send.Seal(out, plaintext, out[:recordHeaderSize])
}

// readRecord consumes one complete record from the shared buffer.
// ok == false with nil error means not enough bytes yet.
func readRecord(rb *pump.ReadBuffer) (rec record, ok bool, err error) {
	rb.Lock()
	defer rb.Unlock()
	if rb.PeekLocked(rec.header[:], 0) < recordHeaderSize {
		return rec, false, nil
	}
	rec.typ = rec.header[0]
	if rec.typ != recordTypeAlert && rec.typ != recordTypeHandshake && rec.typ != recordTypeAppData {
		return rec, false, pumperrors.WarnUnknownRecordType
	}
	if rec.header[1] != 3 || rec.header[2] != 4 {
		return rec, false, pumperrors.WarnRecordHeaderParsing
	}
	bodyLen := int(binary.BigEndian.Uint16(rec.header[3:recordHeaderSize]))
	if bodyLen > maxRecordBodyLen {
		return rec, false, pumperrors.WarnRecordBodyTooLong
	}
	if rb.LenLocked() < recordHeaderSize+bodyLen {
		return rec, false, nil
	}
	rec.body = make([]byte, bodyLen)
	rb.PeekLocked(rec.body, recordHeaderSize)
	rb.DiscardLocked(recordHeaderSize + bodyLen)
	return rec, true, nil
}
