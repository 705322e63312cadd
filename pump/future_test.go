// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

package pump_test

import (
	"sync"
	"testing"

	"github.com/hrissan/tlspump/pump"
)

func TestReadyFuture(t *testing.T) {
	fut := pump.Ready(actions("a1"))
	got, done := fut.Poll()
	if !done || len(got) != 1 || got[0].(string) != "a1" {
		t.Fatalf("ready future must resolve synchronously")
	}
}

func TestPromiseNotifyBeforeResolve(t *testing.T) {
	p := pump.NewPromise()
	if _, done := p.Poll(); done {
		t.Fatalf("unresolved promise must not poll done")
	}
	var got pump.Actions
	fired := 0
	p.Notify(func(a pump.Actions) { got = a; fired++ })
	p.Resolve(actions("a1", "a2"))
	if fired != 1 || len(got) != 2 {
		t.Fatalf("continuation must fire exactly once with the resolved actions")
	}
}

func TestPromiseNotifyAfterResolve(t *testing.T) {
	p := pump.NewPromise()
	p.Resolve(actions("a1"))
	fired := 0
	p.Notify(func(a pump.Actions) { fired++ })
	if fired != 1 {
		t.Fatalf("continuation must fire inline on an already resolved promise")
	}
}

func TestPromiseResolveFromGoroutine(t *testing.T) {
	p := pump.NewPromise()
	done := make(chan pump.Actions, 1)
	p.Notify(func(a pump.Actions) { done <- a })
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Resolve(actions("a1"))
	}()
	got := <-done
	wg.Wait()
	if len(got) != 1 {
		t.Fatalf("continuation must receive the resolved actions")
	}
	if a, ok := p.Poll(); !ok || len(a) != 1 {
		t.Fatalf("resolved promise must poll done")
	}
}
