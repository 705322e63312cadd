// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

// Single ciphersuite record protection (TLS_CHACHA20_POLY1305_SHA256
// numbering). Traffic keys are derived from a shared secret per direction,
// the record sequence number is folded into the IV.

package recordcipher

import (
	"crypto/cipher"
	"encoding/binary"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/hrissan/tlspump/pumperrors"
)

const (
	KeySize  = chacha20poly1305.KeySize
	IVSize   = chacha20poly1305.NonceSize
	Overhead = 16
)

// ClientTrafficSecret and ServerTrafficSecret split one shared secret into
// the two directions.
func ClientTrafficSecret(shared []byte) []byte {
	secret := make([]byte, KeySize)
	HKDFExpandLabel(secret, shared, "c ap traffic", nil)
	return secret
}

func ServerTrafficSecret(shared []byte) []byte {
	secret := make([]byte, KeySize)
	HKDFExpandLabel(secret, shared, "s ap traffic", nil)
	return secret
}

type RecordCipher struct {
	aead cipher.AEAD
	iv   [IVSize]byte
	seq  uint64
}

func New(trafficSecret []byte) *RecordCipher {
	var key [KeySize]byte
	HKDFExpandLabel(key[:], trafficSecret, "key", nil)
	rc := &RecordCipher{}
	HKDFExpandLabel(rc.iv[:], trafficSecret, "iv", nil)
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		panic("chacha20poly1305.New fails " + err.Error())
	}
	rc.aead = aead
	return rc
}

// panic if len(iv) is < 8
func fillIVSequence(iv []byte, seq uint64) {
	maskBytes := iv[len(iv)-8:]
	mask := binary.BigEndian.Uint64(maskBytes)
	binary.BigEndian.PutUint64(maskBytes, seq^mask)
}

// Seal appends the protected record body to dst and advances the sequence
// number. additional is authenticated but not encrypted (the record header).
func (rc *RecordCipher) Seal(dst []byte, plaintext []byte, additional []byte) []byte {
	iv := rc.iv // copy, otherwise disaster
	fillIVSequence(iv[:], rc.seq)
	rc.seq++
	return rc.aead.Seal(dst, iv[:], plaintext, additional)
}

// Open decrypts in place, body can be garbage after unsuccessful decryption.
func (rc *RecordCipher) Open(body []byte, additional []byte) ([]byte, error) {
	iv := rc.iv
	fillIVSequence(iv[:], rc.seq)
	decrypted, err := rc.aead.Open(body[:0], iv[:], body, additional)
	if err != nil {
		return nil, pumperrors.ErrAEADOpenFailed
	}
	rc.seq++
	return decrypted, nil
}
