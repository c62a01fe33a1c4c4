/*
Package events is an in-memory, non-blocking pub/sub broker used to notify
observers of control-plane state changes without coupling the reconciliation
loops to whatever is watching (metrics, a future streaming API, tests).

A Broker fans a single published Event out to every current Subscriber.
Publish never blocks: it drops into a buffered channel (the event is
discarded when that buffer is full), and a full subscriber buffer skips
that subscriber rather than stalling the publisher.
This is fire-and-forget — nothing in the control plane's correctness
depends on an event being observed, since every loop re-derives its state
from the Instance Store on the next pass regardless.

Usage:

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)
	go func() {
		for ev := range sub {
			fmt.Println(ev.Type, ev.Message)
		}
	}()

	broker.Publish(&events.Event{Type: events.EventInstanceLost, Message: inst.Name()})
*/
package events
