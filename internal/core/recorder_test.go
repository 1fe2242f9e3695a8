package core

import (
	"sync"

	"github.com/voidshard/igor/pkg/pubsub"
)

// recordingDriver is a Driver fake that records every KillTask call
// instead of talking to a real resource-offer framework.
type recordingDriver struct {
	mu      sync.Mutex
	killed  []string
	failFor map[string]bool
}

func newRecordingDriver() *recordingDriver {
	return &recordingDriver{failFor: map[string]bool{}}
}

func (d *recordingDriver) KillTask(taskId string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.killed = append(d.killed, taskId)
	return nil
}

func (d *recordingDriver) killedIds() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.killed...)
}

// recordingSink is a pubsub.Sink fake that records every published event.
type recordingSink struct {
	mu     sync.Mutex
	events []pubsub.Event
}

func newRecordingSink() *recordingSink {
	return &recordingSink{}
}

func (s *recordingSink) Publish(evt pubsub.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

func (s *recordingSink) all() []pubsub.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pubsub.Event(nil), s.events...)
}
