package pubsub

import (
	"log"
)

// Subscriber receives every event an InProcess sink publishes.
type Subscriber func(Event)

// InProcess fans published events out to subscribers on a fixed pool of
// goroutines, the same worker-pool-over-a-channel idiom the rest of the
// scheduler uses for its background work.
type InProcess struct {
	events      chan Event
	subscribers []Subscriber
}

// NewInProcess starts routines goroutines draining the publish channel.
func NewInProcess(routines int) *InProcess {
	if routines < 1 {
		routines = 1
	}
	s := &InProcess{events: make(chan Event, 100)}
	for i := 0; i < routines; i++ {
		go s.drain()
	}
	return s
}

// Subscribe registers fn to be called for every subsequently published
// event. Not safe to call concurrently with Publish.
func (s *InProcess) Subscribe(fn Subscriber) {
	s.subscribers = append(s.subscribers, fn)
}

// Publish implements Sink.
func (s *InProcess) Publish(event Event) error {
	s.events <- event
	return nil
}

// Close stops accepting new events. Already-queued events still drain.
func (s *InProcess) Close() error {
	close(s.events)
	return nil
}

func (s *InProcess) drain() {
	for evt := range s.events {
		for _, sub := range s.subscribers {
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Println("[pubsub] subscriber panic:", r)
					}
				}()
				sub(evt)
			}()
		}
	}
}
