// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package tlspump

import (
	"context"
	"net"
	"time"

	"github.com/hrissan/tlspump/pump"
)

func Dial(network, address string, opts *pump.Options) (*Conn, error) {
	return DialTimeout(network, address, opts, 0)
}

func DialTimeout(network, address string, opts *pump.Options, timeout time.Duration) (*Conn, error) {
	nc, err := net.DialTimeout(network, address, timeout)
	if err != nil {
		return nil, err
	}
	conn := Client(nc, opts)
	ctx := context.Background()
	if timeout != 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	select {
	case <-conn.condDial:
		conn.mu.Lock()
		handshaken, closeErr := conn.handshaken, conn.closeErr
		conn.mu.Unlock()
		if !handshaken {
			_ = conn.Close()
			if closeErr == nil {
				closeErr = net.ErrClosed
			}
			return nil, closeErr
		}
		return conn, nil
	case <-ctx.Done():
		_ = conn.Close()
		return nil, ctx.Err()
	}
}
