// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package pump

import (
	"fmt"

	"github.com/hrissan/tlspump/pumpstats"
)

type Options struct {
	Stats pumpstats.Stats

	Preallocate bool // pending event queue is sized up front

	PendingEventsReserve int
	ReadBufferReserve    int // sizing hint for the transport's read buffer
}

func DefaultOptions(stats pumpstats.Stats) *Options {
	return &Options{
		Stats:                stats,
		Preallocate:          true,
		PendingEventsReserve: 16,
		ReadBufferReserve:    4096,
	}
}

func (opts *Options) Validate() error {
	if opts.Stats == nil {
		return fmt.Errorf("Stats must not be nil")
	}
	if opts.PendingEventsReserve < 1 {
		return fmt.Errorf("PendingEventsReserve (%d) should be > 0", opts.PendingEventsReserve)
	}
	if opts.ReadBufferReserve < 1 {
		return fmt.Errorf("ReadBufferReserve (%d) should be > 0", opts.ReadBufferReserve)
	}
	return nil
}
