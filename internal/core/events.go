package core

import (
	"log"
	"time"

	"github.com/voidshard/igor/pkg/pubsub"
	"github.com/voidshard/igor/pkg/storage/changes"
	"github.com/voidshard/igor/pkg/structs"
)

// startEventRoutines runs a single goroutine pulling the store's change
// stream (so this process holds one listener rather than one per worker)
// and fans the resulting work out to opts.EventRoutines workers,
// mirroring the single-fetcher-many-workers idiom the rest of this
// scheduler uses for background work. Every process that runs these
// routines receives and republishes every committed task change.
func (c *Core) startEventRoutines() {
	work := make(chan *changes.Change)

	go func() {
		defer close(work)
		for {
			select {
			case <-c.closeCh:
				return
			default:
			}

			stream, err := c.store.Changes()
			if err != nil {
				log.Println("[core] open change stream:", err)
				select {
				case <-time.After(time.Second):
				case <-c.closeCh:
					return
				}
				continue
			}
			for {
				change, err := stream.Next()
				if err != nil {
					log.Println("[core] change stream:", err)
					break
				}
				if change == nil {
					return
				}
				select {
				case work <- change:
				case <-c.closeCh:
					stream.Close()
					return
				}
			}
			stream.Close()
		}
	}()

	for i := int64(0); i < c.opts.EventRoutines; i++ {
		go func() {
			for change := range work {
				c.handleChange(change)
			}
		}()
	}
}

// handleChange republishes a committed store-level change as a pub/sub
// event for any process (including this one, for processes that aren't
// the one that committed the mutation) subscribed to it.
func (c *Core) handleChange(change *changes.Change) {
	if change.Kind != changes.KindTask || change.New == nil {
		return
	}
	prev := structs.ScheduleStatus("")
	if change.Old != nil {
		prev = change.Old.Status
	}
	c.publish(pubsub.TaskStateChange{Task: change.New, PreviousStatus: prev})
}
