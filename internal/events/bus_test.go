// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package events

import (
	"sync"
	"testing"
)

func TestBusDeliversInOrder(t *testing.T) {
	bus := NewBus[string]()
	var got []string
	bus.Subscribe(func(v string) { got = append(got, "a:"+v) })
	bus.Subscribe(func(v string) { got = append(got, "b:"+v) })

	bus.Publish("x")

	if len(got) != 2 || got[0] != "a:x" || got[1] != "b:x" {
		t.Errorf("got %v", got)
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus[int]()
	calls := 0
	unsub := bus.Subscribe(func(int) { calls++ })

	bus.Publish(1)
	unsub()
	unsub()
	bus.Publish(2)

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if bus.Len() != 0 {
		t.Errorf("Len() = %d, want 0", bus.Len())
	}
}

func TestBusUnsubscribeInsideCallback(t *testing.T) {
	bus := NewBus[int]()
	var unsub func()
	calls := 0
	unsub = bus.Subscribe(func(int) {
		calls++
		unsub()
	})
	bus.Publish(1)
	bus.Publish(2)
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestBusConcurrentPublish(t *testing.T) {
	bus := NewBus[int]()
	var mu sync.Mutex
	total := 0
	bus.Subscribe(func(v int) {
		mu.Lock()
		total += v
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(1)
		}()
	}
	wg.Wait()

	if total != 50 {
		t.Errorf("total = %d, want 50", total)
	}
}
