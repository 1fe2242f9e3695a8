package structs

import "time"

const (
	defEventRoutines    = 4
	defTidyRoutines     = 2
	defTidyJobFrequency = 2 * time.Minute
	defReapFrequency    = 10 * time.Minute
	defMaxTaskRuntime   = 24 * time.Hour

	defKillInitialBackoff = 1 * time.Second
	defKillMaxBackoff     = 30 * time.Second
)

// Options configures the state manager's background routines and the
// killTasks backoff loop (spec.md section 6's "Configuration options").
type Options struct {
	// EventRoutines is the number of goroutines draining the pub/sub
	// event stream.
	EventRoutines int64

	// TidyRoutines is the number of goroutines periodically rechecking
	// task consistency in case events were dropped.
	TidyRoutines int64

	// TidyJobFrequency is not read by internal/core: its tidy routines
	// recheck tasks only, at TidyTaskFrequency.
	TidyJobFrequency time.Duration

	// TidyTaskFrequency is how often running/killing tasks are rechecked
	// for reaping (stuck-too-long, or stuck-in-KILLING).
	TidyTaskFrequency time.Duration

	// MaxTaskRuntime bounds how long a task may run before it is killed.
	MaxTaskRuntime time.Duration

	// KillInitialBackoff / KillMaxBackoff bound the exponential backoff
	// killTasks uses while polling for a kill to take effect.
	KillInitialBackoff time.Duration
	KillMaxBackoff     time.Duration

	// EnableJobCreation rejects CreateJob-equivalent calls when false.
	EnableJobCreation bool
}

// DefaultOptions returns the options a full scheduler process runs with:
// background tidy/event routines enabled.
func DefaultOptions() *Options {
	return &Options{
		EventRoutines:      defEventRoutines,
		TidyRoutines:        defTidyRoutines,
		TidyJobFrequency:    defTidyJobFrequency,
		TidyTaskFrequency:   defReapFrequency,
		MaxTaskRuntime:      defMaxTaskRuntime,
		KillInitialBackoff:  defKillInitialBackoff,
		KillMaxBackoff:      defKillMaxBackoff,
		EnableJobCreation:   true,
	}
}
