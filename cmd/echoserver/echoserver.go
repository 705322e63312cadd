// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package main

import (
	"flag"
	"log"
	"net"

	"github.com/hrissan/tlspump"
	"github.com/hrissan/tlspump/pump"
	"github.com/hrissan/tlspump/pumpstats"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:11111", "listen address")
	mintTickets := flag.Bool("tickets", false, "mint a resumption ticket for every connection")
	flag.Parse()

	st := pumpstats.NewStatsLogVerbose()
	opts := pump.DefaultOptions(st)

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Panic("echoserver: cannot listen: ", err)
	}
	log.Printf("echoserver: listening on %s", *addr)

	for {
		nc, err := ln.Accept()
		if err != nil {
			log.Panic("echoserver: accept failed: ", err)
		}
		go serve(tlspump.Server(nc, opts), *mintTickets)
	}
}

func serve(conn *tlspump.Conn, mintTickets bool) {
	defer func() {
		_ = conn.Close()
	}()
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			log.Printf("echoserver: connection finished: %v", err)
			return
		}
		if mintTickets {
			// decrypted data means the handshake finished, tickets
			// requested before that fail the connection
			conn.WriteNewSessionTicket([]byte("echoserver ticket"))
			mintTickets = false
		}
		if _, err := conn.Write(buf[:n]); err != nil {
			log.Printf("echoserver: write failed: %v", err)
			return
		}
	}
}
