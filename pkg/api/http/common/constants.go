package common

const (
	// API_TASKS gets or creates tasks.
	API_TASKS = "/api/v1/tasks"

	// API_TASKS_ASSIGN assigns a single pending task to a host.
	API_TASKS_ASSIGN = "/api/v1/tasks/assign"

	// API_TASKS_STATE drives tasks matching a query to a new status.
	API_TASKS_STATE = "/api/v1/tasks/state"

	// API_TASKS_KILL kills tasks matching a query and waits for them to
	// stop being active.
	API_TASKS_KILL = "/api/v1/tasks/kill"

	// API_UPDATES registers a rolling update for a job.
	API_UPDATES = "/api/v1/updates"

	// API_UPDATES_SHARDS drives an update's shards through
	// UPDATING/ROLLBACK.
	API_UPDATES_SHARDS = "/api/v1/updates/shards"

	// API_UPDATES_FINISH finishes (and removes) a registered update.
	API_UPDATES_FINISH = "/api/v1/updates/finish"
)
