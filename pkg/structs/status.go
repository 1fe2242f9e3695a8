package structs

import (
	"strings"
)

// ScheduleStatus is the status of a task as it progresses through its
// lifecycle.
type ScheduleStatus string

const (
	// INIT is set the moment a task is created, before it has been
	// persisted with a real status.
	INIT ScheduleStatus = "INIT"

	PENDING    ScheduleStatus = "PENDING"
	ASSIGNED   ScheduleStatus = "ASSIGNED"
	STARTING   ScheduleStatus = "STARTING"
	RUNNING    ScheduleStatus = "RUNNING"
	RESTARTING ScheduleStatus = "RESTARTING"
	UPDATING   ScheduleStatus = "UPDATING"
	ROLLBACK   ScheduleStatus = "ROLLBACK"
	PREEMPTING ScheduleStatus = "PREEMPTING"
	KILLING    ScheduleStatus = "KILLING"

	// terminal states
	FAILED   ScheduleStatus = "FAILED"
	FINISHED ScheduleStatus = "FINISHED"
	KILLED   ScheduleStatus = "KILLED"
	LOST     ScheduleStatus = "LOST"

	// UNKNOWN is never persisted; it marks a status update for a task id
	// the store has no record of.
	UNKNOWN ScheduleStatus = "UNKNOWN"
)

// activeStatuses are the statuses for which a task counts against the
// "at most one active task per (role, job, shard)" invariant.
var activeStatuses = map[ScheduleStatus]bool{
	PENDING:    true,
	ASSIGNED:   true,
	STARTING:   true,
	RUNNING:    true,
	UPDATING:   true,
	ROLLBACK:   true,
	KILLING:    true,
	PREEMPTING: true,
	RESTARTING: true,
}

// terminalStatuses are sinks: no further updateState transition is legal
// out of them (only garbage collection, which is a distinct operation).
var terminalStatuses = map[ScheduleStatus]bool{
	FAILED:   true,
	FINISHED: true,
	KILLED:   true,
	LOST:     true,
}

// IsActive reports whether a task in this status counts as "active" for
// the purposes of the one-active-task-per-shard invariant.
func IsActive(s ScheduleStatus) bool {
	return activeStatuses[s]
}

// IsTerminal reports whether a status is a sink state.
func IsTerminal(s ScheduleStatus) bool {
	return terminalStatuses[s]
}

// ToStatus parses a (case-insensitive) string into a ScheduleStatus, or
// returns "" if it isn't recognised.
func ToStatus(s string) ScheduleStatus {
	switch strings.ToUpper(s) {
	case "INIT":
		return INIT
	case "PENDING":
		return PENDING
	case "ASSIGNED":
		return ASSIGNED
	case "STARTING":
		return STARTING
	case "RUNNING":
		return RUNNING
	case "RESTARTING":
		return RESTARTING
	case "UPDATING":
		return UPDATING
	case "ROLLBACK":
		return ROLLBACK
	case "PREEMPTING":
		return PREEMPTING
	case "KILLING":
		return KILLING
	case "FAILED":
		return FAILED
	case "FINISHED":
		return FINISHED
	case "KILLED":
		return KILLED
	case "LOST":
		return LOST
	case "UNKNOWN":
		return UNKNOWN
	default:
		return ""
	}
}
