// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/hrissan/tlspump"
	"github.com/hrissan/tlspump/pump"
	"github.com/hrissan/tlspump/pumpstats"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:11111", "server address")
	flag.Parse()

	st := pumpstats.NewStatsLogVerbose()
	opts := pump.DefaultOptions(st)

	conn, err := tlspump.DialTimeout("tcp", *addr, opts, 5*time.Second)
	if err != nil {
		log.Panic("echoclient: cannot connect: ", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	fmt.Println("connected, every line is echoed back, EOF to quit")

	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				log.Printf("echoclient: connection finished: %v", err)
				os.Exit(0)
			}
			fmt.Printf("< %s\n", buf[:n])
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if _, err := conn.Write(scanner.Bytes()); err != nil {
			log.Printf("echoclient: write failed: %v", err)
			return
		}
	}
}
