// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package recordcipher

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"hash"
	"math"

	"github.com/hrissan/tlspump/safecast"
)

func newHMAC(key []byte) hash.Hash {
	return hmac.New(sha256.New, key)
}

func hkdfExpand(dst []byte, hmacSecret hash.Hash, info []byte) {
	offset := 0
	hmacSecret.Reset()
	var block [sha256.Size]byte
	for i := 1; offset < len(dst); i++ {
		hmacSecret.Write(info)
		hmacSecret.Write([]byte{byte(i)}) // truncate
		sum := hmacSecret.Sum(block[:0])
		offset += copy(dst[offset:], sum)
		hmacSecret.Reset()
		hmacSecret.Write(sum)
	}
}

func HKDFExpandLabel(dst []byte, secret []byte, label string, context []byte) {
	if len(dst) > math.MaxUint16 {
		panic("invalid expand label result length")
	}
	hkdflabel := make([]byte, 0, 128)
	hkdflabel = binary.BigEndian.AppendUint16(hkdflabel, uint16(len(dst))) // safe due to check above
	hkdflabel = append(hkdflabel, safecast.Cast[byte](len(label)+6))
	hkdflabel = append(hkdflabel, "tls13 "...)
	hkdflabel = append(hkdflabel, label...)
	hkdflabel = append(hkdflabel, safecast.Cast[byte](len(context)))
	hkdflabel = append(hkdflabel, context...)
	hkdfExpand(dst, newHMAC(secret), hkdflabel)
}
