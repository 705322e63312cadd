// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package safecast_test

import (
	"math"
	"testing"

	"github.com/hrissan/tlspump/safecast"
)

func TestTryCast(t *testing.T) {
	if v, err := safecast.TryCast[uint16](65535); err != nil || v != 65535 {
		t.Fatalf("cast of max uint16 must succeed, got %d %v", v, err)
	}
	if _, err := safecast.TryCast[uint16](65536); err == nil {
		t.Fatalf("cast of 65536 to uint16 must overflow")
	}
	if _, err := safecast.TryCast[uint16](-1); err == nil {
		t.Fatalf("cast of -1 to uint16 must lose sign")
	}
	if v, err := safecast.TryCast[int32](int64(math.MinInt32)); err != nil || v != math.MinInt32 {
		t.Fatalf("cast of min int32 must succeed, got %d %v", v, err)
	}
	if _, err := safecast.TryCast[int32](int64(math.MinInt32) - 1); err == nil {
		t.Fatalf("cast below min int32 must overflow")
	}
}

func TestCastPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("Cast must panic on overflow")
		}
	}()
	_ = safecast.Cast[byte](256)
}
