package core

import (
	"fmt"
	"log"

	"github.com/voidshard/igor/internal/core/workqueue"
	ierrors "github.com/voidshard/igor/pkg/errors"
	"github.com/voidshard/igor/pkg/pubsub"
	"github.com/voidshard/igor/pkg/storage"
	"github.com/voidshard/igor/pkg/structs"
)

// InsertTasks generates a task id per config, persists each as INIT, and
// drives every machine to PENDING in one write transaction.
func (c *Core) InsertTasks(configs []*structs.TaskConfig) ([]string, error) {
	if len(configs) == 0 {
		return nil, ierrors.ErrNoTasks
	}
	if !c.opts.EnableJobCreation {
		return nil, ierrors.ErrJobCreationDisabled
	}

	var ids []string
	err := c.writeTransaction(func(wq *workqueue.Queue, sp storage.MutableStoreProvider) error {
		ids = nil
		tasks := make([]*structs.ScheduledTask, 0, len(configs))
		for _, cfg := range configs {
			id := generateTaskId(cfg.Role, cfg.Name, cfg.ShardId)
			tasks = append(tasks, &structs.ScheduledTask{
				TaskId:       id,
				Status:       structs.INIT,
				AssignedTask: structs.AssignedTask{TaskConfig: *cfg},
			})
			ids = append(ids, id)
		}
		if err := sp.Tasks().SaveTasks(tasks); err != nil {
			return err
		}
		for _, t := range tasks {
			key := t.JobKeyOf()
			m := c.newMachine(t, t.TaskId, key.Role, key.Name, structs.INIT, nil, wq)
			m.UpdateState(structs.PENDING, "", nil)
		}
		return nil
	})
	return ids, err
}

// AssignTask drives the single task matching taskId to ASSIGNED, filling
// in its placement fields and the requested-port -> granted-port map.
// More than one matching task is an invariant breach and panics; zero
// matches is a normal, reportable error.
func (c *Core) AssignTask(taskId, slaveId, host string, grantedPorts []int32) (*structs.AssignedTask, error) {
	var result *structs.AssignedTask
	err := c.writeTransaction(func(wq *workqueue.Queue, sp storage.MutableStoreProvider) error {
		tasks, err := sp.Tasks().FetchTasks(&structs.Query{TaskIds: []string{taskId}})
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			return fmt.Errorf("%w: task %s", ierrors.ErrNotFound, taskId)
		}
		if len(tasks) > 1 {
			panic(fmt.Sprintf("core: assignTask invariant breach: %d tasks match id %s", len(tasks), taskId))
		}

		t := tasks[0]
		key := t.JobKeyOf()
		m := c.newMachine(t, t.TaskId, key.Role, key.Name, t.Status, nil, wq)
		ok := m.UpdateState(structs.ASSIGNED, "", func(mt *structs.ScheduledTask) {
			mt.AssignedTask.SlaveId = slaveId
			mt.AssignedTask.SlaveHost = host
			mt.AssignedTask.AssignedPorts = zipPorts(mt.AssignedTask.RequestedPorts, grantedPorts)
			assigned := mt.AssignedTask
			result = &assigned
		})
		if !ok {
			return fmt.Errorf("%w: cannot assign task %s from status %s", ierrors.ErrInvalidState, taskId, t.Status)
		}
		return nil
	})
	return result, err
}

func zipPorts(names []string, granted []int32) map[string]int32 {
	if len(names) == 0 {
		return nil
	}
	out := make(map[string]int32, len(names))
	for i, name := range names {
		if i >= len(granted) {
			break
		}
		out[name] = granted[i]
	}
	return out
}

// ChangeState drives every task matching query to target, returning how
// many machines accepted the transition.
func (c *Core) ChangeState(query *structs.Query, target structs.ScheduleStatus, auditMsg string) (int, error) {
	query.Sanitize()
	count := 0
	err := c.writeTransaction(func(wq *workqueue.Queue, sp storage.MutableStoreProvider) error {
		tasks, err := sp.Tasks().FetchTasks(query)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			key := t.JobKeyOf()
			m := c.newMachine(t, t.TaskId, key.Role, key.Name, t.Status, nil, wq)
			if m.UpdateState(target, auditMsg, nil) {
				count++
			}
		}
		return nil
	})
	return count, err
}

// FetchTasks is a read-only query.
func (c *Core) FetchTasks(query *structs.Query) ([]*structs.ScheduledTask, error) {
	return c.fetchTasksInternal(query)
}

// deleteTasks enqueues DELETE work for ids directly; DELETE isn't a
// ScheduleStatus so it never goes through a state machine transition.
func (c *Core) deleteTasks(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return c.writeTransaction(func(wq *workqueue.Queue, sp storage.MutableStoreProvider) error {
		for _, id := range ids {
			wq.AddWork(structs.DELETE, id, nil)
		}
		return nil
	})
}

// rescheduleTerminated handles plain RESCHEDULE work: a service task
// that died outside of an update gets a replacement carrying the same
// config and the same failure count, so MaxFailures bounds the whole
// chain of replacements.
func (c *Core) rescheduleTerminated(oldTaskId string, wq *workqueue.Queue, sp storage.MutableStoreProvider) ([]func(), error) {
	tasks, err := sp.Tasks().FetchTasks(&structs.Query{TaskIds: []string{oldTaskId}})
	if err != nil {
		return nil, err
	}
	if len(tasks) != 1 {
		log.Println("[core] reschedule: task", oldTaskId, "not found, skipping")
		return nil, nil
	}
	old := tasks[0]
	cfg := old.AssignedTask.TaskConfig
	return c.spawnReplacement(old.TaskId, cfg, old.FailureCount, wq, sp)
}

// rescheduleForUpdate handles UPDATE/ROLLBACK work: a task that died
// while UPDATING/ROLLBACK gets a replacement carrying the update's
// new/old config (selected by selector), unless the update config has
// since been removed (finishUpdate raced ahead — a benign no-op, see
// DESIGN.md) or the shard has no config on the requested side (the
// update removed it).
func (c *Core) rescheduleForUpdate(oldTaskId string, selector structs.ConfigSelector, wq *workqueue.Queue, sp storage.MutableStoreProvider) ([]func(), error) {
	tasks, err := sp.Tasks().FetchTasks(&structs.Query{TaskIds: []string{oldTaskId}})
	if err != nil {
		return nil, err
	}
	if len(tasks) != 1 {
		log.Println("[core] reschedule-for-update: task", oldTaskId, "not found, skipping")
		return nil, nil
	}
	old := tasks[0]
	key := old.JobKeyOf()

	updCfg, err := sp.Updates().FetchJobUpdateConfig(key)
	if err != nil {
		return nil, err
	}
	if updCfg == nil {
		log.Println("[core] reschedule-for-update: no update registered for", key, "- raced with finishUpdate, skipping")
		return nil, nil
	}
	shardCfg, ok := updCfg.Configs[old.AssignedTask.ShardId]
	if !ok {
		log.Println("[core] reschedule-for-update: shard", old.AssignedTask.ShardId, "not part of update", key, "skipping")
		return nil, nil
	}
	target := selector(shardCfg)
	if target == nil {
		return nil, nil
	}
	return c.spawnReplacement(old.TaskId, *target, 0, wq, sp)
}

func (c *Core) spawnReplacement(ancestorId string, cfg structs.TaskConfig, failureCount int, wq *workqueue.Queue, sp storage.MutableStoreProvider) ([]func(), error) {
	newId := generateTaskId(cfg.Role, cfg.Name, cfg.ShardId)
	nt := &structs.ScheduledTask{
		TaskId:       newId,
		Status:       structs.INIT,
		AncestorId:   ancestorId,
		AssignedTask: structs.AssignedTask{TaskConfig: cfg},
		FailureCount: failureCount,
	}
	if err := sp.Tasks().SaveTasks([]*structs.ScheduledTask{nt}); err != nil {
		return nil, err
	}
	m := c.newMachine(nt, nt.TaskId, cfg.Role, cfg.Name, structs.INIT, nil, wq)
	m.UpdateState(structs.PENDING, "", nil)

	role, job, shardId := cfg.Role, cfg.Name, cfg.ShardId
	return []func(){func() { c.publish(pubsub.TaskRescheduled{Role: role, Job: job, ShardId: shardId}) }}, nil
}
