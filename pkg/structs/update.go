package structs

// UpdateResult is the outcome an update finishes with.
type UpdateResult string

const (
	SUCCESS       UpdateResult = "SUCCESS"
	UPDATE_FAILED UpdateResult = "FAILED"
)

// ShardUpdateResult is returned per-shard from modifyShards, describing
// what happened to that shard.
type ShardUpdateResult string

const (
	ShardAdded      ShardUpdateResult = "ADDED"
	ShardRestarting ShardUpdateResult = "RESTARTING"
	ShardUnchanged  ShardUpdateResult = "UNCHANGED"
)

// TaskUpdateConfiguration carries the before/after config for a single
// shard of an in-progress update. Either side may be nil: OldConfig nil
// means the update adds this shard; NewConfig nil means the update
// removes it.
type TaskUpdateConfiguration struct {
	ShardId   int         `json:"shard_id"`
	OldConfig *TaskConfig `json:"old_config,omitempty"`
	NewConfig *TaskConfig `json:"new_config,omitempty"`
}

// JobUpdateConfiguration is the registered, in-progress rolling update for
// a (role, job).
type JobUpdateConfiguration struct {
	JobKey `json:",inline"`

	UpdateToken string `json:"update_token"`

	Configs map[int]*TaskUpdateConfiguration `json:"configs"`
}

// ConfigSelector picks one side of a TaskUpdateConfiguration. Used so
// modifyShards can share its shard-diffing logic between an update
// (select the new config) and a rollback (select the old config).
type ConfigSelector func(*TaskUpdateConfiguration) *TaskConfig

// GetNewConfig selects the "new" (update target) side of a shard config.
func GetNewConfig(c *TaskUpdateConfiguration) *TaskConfig { return c.NewConfig }

// GetOriginalConfig selects the "old" (rollback target) side of a shard
// config.
func GetOriginalConfig(c *TaskUpdateConfiguration) *TaskConfig { return c.OldConfig }
