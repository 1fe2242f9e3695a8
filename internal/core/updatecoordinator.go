package core

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/voidshard/igor/internal/core/workqueue"
	ierrors "github.com/voidshard/igor/pkg/errors"
	"github.com/voidshard/igor/pkg/storage"
	"github.com/voidshard/igor/pkg/structs"
)

// RegisterUpdate computes the symmetric-diff of the job's active tasks
// against newConfigs and persists one TaskUpdateConfiguration per shard
// id in the union, returning a fresh update token.
func (c *Core) RegisterUpdate(key structs.JobKey, newConfigs map[int]*structs.TaskConfig) (string, error) {
	var token string
	err := c.writeTransaction(func(wq *workqueue.Queue, sp storage.MutableStoreProvider) error {
		active, err := sp.Tasks().FetchTasks(&structs.Query{
			Role: key.Role, Environment: key.Environment, JobName: key.Name, Statuses: activeStatusList,
		})
		if err != nil {
			return err
		}
		if len(active) == 0 {
			return fmt.Errorf("%w: %s", ierrors.ErrNoActiveTasks, key)
		}
		for _, t := range active {
			if t.Status == structs.UPDATING || t.Status == structs.ROLLBACK {
				return fmt.Errorf("%w: %s", ierrors.ErrUpdateInFlight, key)
			}
		}

		existing, err := sp.Updates().FetchJobUpdateConfig(key)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: update already in progress for %s", ierrors.ErrUpdateInProgress, key)
		}

		oldByShard := map[int]*structs.TaskConfig{}
		for _, t := range active {
			cfg := t.AssignedTask.TaskConfig
			oldByShard[cfg.ShardId] = &cfg
		}

		shardIds := map[int]bool{}
		for id := range oldByShard {
			shardIds[id] = true
		}
		for id := range newConfigs {
			shardIds[id] = true
		}

		configs := make(map[int]*structs.TaskUpdateConfiguration, len(shardIds))
		for id := range shardIds {
			configs[id] = &structs.TaskUpdateConfiguration{
				ShardId:   id,
				OldConfig: oldByShard[id],
				NewConfig: newConfigs[id],
			}
		}

		token = uuid.New().String()
		return sp.Updates().SaveJobUpdateConfig(&structs.JobUpdateConfiguration{
			JobKey:      key,
			UpdateToken: token,
			Configs:     configs,
		})
	})
	return token, err
}

// ModifyShards drives shards through an update (updating=true) or a
// rollback (updating=false), creating added shards, restarting changed
// ones, and leaving unchanged ones alone.
func (c *Core) ModifyShards(identity string, key structs.JobKey, shards []int, token string, updating bool) (map[int]structs.ShardUpdateResult, error) {
	if len(shards) == 0 {
		return map[int]structs.ShardUpdateResult{}, nil
	}

	selector := structs.GetOriginalConfig
	driveTo := structs.ROLLBACK
	verb := "Rolled back by"
	if updating {
		selector = structs.GetNewConfig
		driveTo = structs.UPDATING
		verb = "Updated by"
	}

	result := map[int]structs.ShardUpdateResult{}
	err := c.writeTransaction(func(wq *workqueue.Queue, sp storage.MutableStoreProvider) error {
		result = map[int]structs.ShardUpdateResult{}

		cfg, err := sp.Updates().FetchJobUpdateConfig(key)
		if err != nil {
			return err
		}
		if cfg == nil {
			return fmt.Errorf("%w: %s", ierrors.ErrNoUpdateRegistered, key)
		}
		if token != "" && cfg.UpdateToken != token {
			return fmt.Errorf("%w: %s", ierrors.ErrUpdateTokenMismatch, key)
		}

		targets := map[int]*structs.TaskConfig{}
		var unrecognized []int
		for _, id := range shards {
			shardCfg, ok := cfg.Configs[id]
			if !ok {
				unrecognized = append(unrecognized, id)
				continue
			}
			targets[id] = selector(shardCfg)
		}
		if len(unrecognized) > 0 {
			return fmt.Errorf("%w: %v", ierrors.ErrUnrecognizedShards, unrecognized)
		}

		active, err := sp.Tasks().FetchTasks(&structs.Query{
			Role: key.Role, Environment: key.Environment, JobName: key.Name,
			ShardIds: shards, Statuses: activeStatusList,
		})
		if err != nil {
			return err
		}
		activeByShard := map[int]*structs.ScheduledTask{}
		for _, t := range active {
			activeByShard[t.AssignedTask.ShardId] = t
		}

		var toAdd []*structs.TaskConfig
		for _, id := range shards {
			target := targets[id]
			task, hasActive := activeByShard[id]

			if !hasActive {
				if target == nil {
					result[id] = structs.ShardUnchanged
					continue
				}
				toAdd = append(toAdd, target)
				result[id] = structs.ShardAdded
				continue
			}

			if task.Status == structs.UPDATING || task.Status == structs.ROLLBACK {
				// already being driven by an earlier modifyShards call.
				result[id] = structs.ShardRestarting
				continue
			}

			if target != nil && task.AssignedTask.TaskConfig.Equal(*target) {
				result[id] = structs.ShardUnchanged
				continue
			}

			jobKey := task.JobKeyOf()
			m := c.newMachine(task, task.TaskId, jobKey.Role, jobKey.Name, task.Status, func() bool { return true }, wq)
			msg := fmt.Sprintf("%s %s", verb, identity)
			if m.UpdateState(driveTo, msg, nil) {
				result[id] = structs.ShardRestarting
			} else {
				result[id] = structs.ShardUnchanged
			}
		}

		if len(toAdd) == 0 {
			return nil
		}
		newTasks := make([]*structs.ScheduledTask, 0, len(toAdd))
		for _, tc := range toAdd {
			newTasks = append(newTasks, &structs.ScheduledTask{
				TaskId:       generateTaskId(tc.Role, tc.Name, tc.ShardId),
				Status:       structs.INIT,
				AssignedTask: structs.AssignedTask{TaskConfig: *tc},
			})
		}
		if err := sp.Tasks().SaveTasks(newTasks); err != nil {
			return err
		}
		for _, t := range newTasks {
			jobKey := t.JobKeyOf()
			m := c.newMachine(t, t.TaskId, jobKey.Role, jobKey.Name, structs.INIT, nil, wq)
			m.UpdateState(structs.PENDING, "", nil)
		}
		return nil
	})
	return result, err
}

// FinishUpdate removes the registered update, killing any shard whose
// accepted-outcome side (new on SUCCESS, old on FAILED) is nil, i.e. the
// shards the accepted outcome removes.
func (c *Core) FinishUpdate(identity string, key structs.JobKey, token string, result structs.UpdateResult, throwIfMissing bool) (bool, error) {
	var ok bool
	err := c.writeTransaction(func(wq *workqueue.Queue, sp storage.MutableStoreProvider) error {
		ok = false

		stillUpdating, err := sp.Tasks().FetchTasks(&structs.Query{
			Role: key.Role, Environment: key.Environment, JobName: key.Name,
			Statuses: []structs.ScheduleStatus{structs.UPDATING, structs.ROLLBACK},
		})
		if err != nil {
			return err
		}
		if len(stillUpdating) > 0 {
			return fmt.Errorf("%w: %s", ierrors.ErrUpdateInFlight, key)
		}

		cfg, err := sp.Updates().FetchJobUpdateConfig(key)
		if err != nil {
			return err
		}
		if cfg == nil {
			if throwIfMissing {
				return fmt.Errorf("%w: %s", ierrors.ErrNoUpdateRegistered, key)
			}
			return nil
		}
		if token != "" && cfg.UpdateToken != token {
			return fmt.Errorf("%w: %s", ierrors.ErrUpdateTokenMismatch, key)
		}

		selector := structs.GetOriginalConfig
		if result == structs.SUCCESS {
			selector = structs.GetNewConfig
		}

		var removedShards []int
		for shardId, shardCfg := range cfg.Configs {
			if selector(shardCfg) == nil {
				removedShards = append(removedShards, shardId)
			}
		}

		if len(removedShards) > 0 {
			q := &structs.Query{
				Role: key.Role, Environment: key.Environment, JobName: key.Name,
				ShardIds: removedShards, Statuses: activeStatusList,
			}
			tasks, err := sp.Tasks().FetchTasks(q)
			if err != nil {
				return err
			}
			msg := fmt.Sprintf("Removed during update by %s", identity)
			for _, t := range tasks {
				jobKey := t.JobKeyOf()
				m := c.newMachine(t, t.TaskId, jobKey.Role, jobKey.Name, t.Status, nil, wq)
				m.UpdateState(structs.KILLING, msg, nil)
			}
		}

		if err := sp.Updates().RemoveShardUpdateConfigs(key, nil); err != nil {
			return err
		}
		ok = true
		return nil
	})
	return ok, err
}
