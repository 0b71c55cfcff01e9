/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "testing"

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := NewBus()
	a := bus.Subscribe(EventPulseFired)
	b := bus.Subscribe(EventPulseFired)
	other := bus.Subscribe(EventDriverStopped)

	bus.Publish(EventPulseFired, Payload{"index": 3})

	for name, sub := range map[string]Subscriber{"a": a, "b": b} {
		select {
		case p := <-sub:
			if p["index"] != 3 {
				t.Fatalf("%s: payload = %v", name, p)
			}
		default:
			t.Fatalf("%s: no event delivered", name)
		}
	}

	select {
	case p := <-other:
		t.Fatalf("unexpected delivery to other event type: %v", p)
	default:
	}
}

func TestBusDropsWhenSubscriberFull(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventPulseFired)

	for i := 0; i < cap(sub)+10; i++ {
		bus.Publish(EventPulseFired, Payload{"i": i})
	}
	if len(sub) != cap(sub) {
		t.Fatalf("buffered %d events, want %d", len(sub), cap(sub))
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventDayWrapped)
	bus.Unsubscribe(EventDayWrapped, sub)

	if _, ok := <-sub; ok {
		t.Fatal("expected closed channel")
	}

	// Publishing after unsubscribe must not panic on the closed channel.
	bus.Publish(EventDayWrapped, Payload{})
}
