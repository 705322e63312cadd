package pumperrors

import (
	"fmt"
)

// we do not allocate on error returning path,
// so all errors are completely static

type Error struct {
	fatal bool
	code  int
	text  string
}

func (e *Error) Error() string {
	if e.fatal {
		return fmt.Sprintf("tlspump (fatal): %d %s", e.code, e.text)
	}
	return fmt.Sprintf("tlspump (warning): %d %s", e.code, e.text)
}

func NewFatal(code int, text string) error {
	return &Error{
		fatal: true,
		code:  code,
		text:  text,
	}
}

func NewWarning(code int, text string) error {
	return &Error{
		fatal: false,
		code:  code,
		text:  text,
	}
}

// driver
var ErrWriteRejectedTerminal = NewFatal(-100, "driver is in terminal state, write rejected")
var ErrWriteRejectedDestroyed = NewFatal(-101, "driver destroyed, write rejected")
var ErrDriverClosed = NewFatal(-102, "driver moved to closed state with writes pending")

// reference state machine, record layer
var WarnRecordHeaderParsing = NewWarning(-200, "record header failed to parse")
var WarnUnknownRecordType = NewWarning(-201, "record type is not handshake, application data or alert")
var WarnRecordBodyTooLong = NewWarning(-202, "record body length exceeds limit")
var WarnAlertBodyParsing = NewWarning(-203, "alert record body failed to parse")
var ErrKeyShareLength = NewFatal(-300, "key share message must carry exactly 32 bytes")
var ErrHandshakeMessageUnknown = NewFatal(-301, "unknown handshake message type")
var ErrDataBeforeHandshake = NewFatal(-302, "application data record before handshake finished")
var ErrTicketBeforeHandshake = NewFatal(-303, "session ticket requested before handshake finished")
var ErrAEADOpenFailed = NewFatal(-304, "failed to deprotect encrypted record")
var ErrPeerClosedAbruptly = NewFatal(-305, "peer closed connection with fatal alert")
var ErrKeyExchangeFailed = NewFatal(-306, "x25519 key exchange produced no shared secret")
var ErrUnexpectedKeyShare = NewFatal(-307, "key share message after handshake finished")

// capability errors are fatal logic errors, not protocol conditions
var ErrCapabilityNotImplemented = NewFatal(-400, "capability not implemented by this endpoint role")
