package structs

// WorkCommand tags a deferred side effect emitted by a task state machine.
// Work commands are collected in a transaction-scoped queue and drained
// against the mutable store at commit.
type WorkCommand string

const (
	// KILL asks the driver to kill a task by id. Fire-and-forget.
	KILL WorkCommand = "KILL"

	// RESCHEDULE creates a replacement task carrying the same config as
	// the one that just terminated.
	RESCHEDULE WorkCommand = "RESCHEDULE"

	// UPDATE creates a replacement task carrying an update's new config.
	UPDATE WorkCommand = "UPDATE"

	// ROLLBACK_WORK creates a replacement task carrying an update's old
	// config.
	ROLLBACK_WORK WorkCommand = "ROLLBACK"

	// UPDATE_STATE persists a status change (and appends a task event).
	UPDATE_STATE WorkCommand = "UPDATE_STATE"

	// DELETE removes a task record outright. Sorts strictly after every
	// other command in the deferred work queue.
	DELETE WorkCommand = "DELETE"

	// INCREMENT_FAILURES bumps a task's failure count.
	INCREMENT_FAILURES WorkCommand = "INCREMENT_FAILURES"
)
