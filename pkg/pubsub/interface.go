// Package pubsub defines the event sink the state manager and update
// coordinator publish to, post-commit, and the concrete event types they
// publish.
package pubsub

import (
	"github.com/voidshard/igor/pkg/structs"
)

// Event is the common interface every published event satisfies. It
// carries no behaviour; it exists so Sink.Publish has a single typed
// parameter instead of interface{}.
type Event interface {
	eventKind() string
}

// TaskStateChange is published whenever a task's status is committed.
type TaskStateChange struct {
	Task           *structs.ScheduledTask
	PreviousStatus structs.ScheduleStatus
}

func (TaskStateChange) eventKind() string { return "TaskStateChange" }

// TaskRescheduled is published when a terminal task is replaced (by a
// plain reschedule, or by an update/rollback).
type TaskRescheduled struct {
	Role    string
	Job     string
	ShardId int
}

func (TaskRescheduled) eventKind() string { return "TaskRescheduled" }

// DriverRegistered is published once the scheduler has registered with
// the resource-offer framework under a framework id.
type DriverRegistered struct {
	FrameworkId string
}

func (DriverRegistered) eventKind() string { return "DriverRegistered" }

// HostMaintenanceChanged is published when a host's maintenance mode
// changes (the maintenance controller itself is an external
// collaborator; this event is the only surface it touches here).
type HostMaintenanceChanged struct {
	Host string
	Mode string
}

func (HostMaintenanceChanged) eventKind() string { return "HostMaintenanceChanged" }

// Sink publishes events. Publish is called only after a write
// transaction has committed; a failing transaction emits nothing.
type Sink interface {
	Publish(event Event) error
}
