package errors

import (
	"fmt"
)

// Sentinel errors. Callers wrap these with fmt.Errorf("%w ...", ErrX, ...)
// and unwrap them at a transport boundary with errors.Is.
var (
	// UpdateException taxonomy: rolling-update precondition violations.
	ErrUpdateInProgress    = fmt.Errorf("update already in progress")
	ErrNoUpdateRegistered  = fmt.Errorf("no update registered")
	ErrUpdateTokenMismatch = fmt.Errorf("update token mismatch")
	ErrUnrecognizedShards  = fmt.Errorf("unrecognized shards")
	ErrNoActiveTasks       = fmt.Errorf("no active tasks for job")
	ErrUpdateInFlight      = fmt.Errorf("tasks still updating or rolling back")

	// ScheduleException taxonomy: placement / job-lifecycle violations.
	ErrInvalidState        = fmt.Errorf("invalid state")
	ErrInvalidArg          = fmt.Errorf("invalid arg")
	ErrNoTasks             = fmt.Errorf("no tasks specified")
	ErrNoTaskType          = fmt.Errorf("no task type specified")
	ErrJobCreationDisabled = fmt.Errorf("job creation is disabled")

	// Store-level conditions surfaced up from pkg/storage.
	ErrETagMismatch = fmt.Errorf("etag mismatch")
	ErrNotFound     = fmt.Errorf("not found")
	ErrMaxExceeded  = fmt.Errorf("max length exceeded")
	ErrNotSupported = fmt.Errorf("not supported")

	// AuthFailedException taxonomy; session auth itself is an external
	// collaborator (see spec.md Non-goals) but the HTTP transport still
	// needs a sentinel to map onto 401.
	ErrAuthFailed = fmt.Errorf("authentication failed")
)
