// Package core implements the task state manager and rolling-update
// coordinator: the orchestration layer that opens transactions against
// pkg/storage, drives internal/core/statemachine instances, and drains
// internal/core/workqueue against the driver and pub/sub sink at
// commit.
package core

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/voidshard/igor/internal/core/statemachine"
	"github.com/voidshard/igor/internal/core/workqueue"
	"github.com/voidshard/igor/internal/filter"
	"github.com/voidshard/igor/pkg/driver"
	"github.com/voidshard/igor/pkg/pubsub"
	"github.com/voidshard/igor/pkg/storage"
	"github.com/voidshard/igor/pkg/structs"
)

// Core is the long-lived, shared value the scheduler process builds
// once. It owns no mutable task state itself — that lives entirely in
// the store — beyond the bookkeeping needed to let nested write
// transactions compose without re-entering the store.
type Core struct {
	store  storage.Store
	driver driver.Driver
	sink   pubsub.Sink
	opts   *structs.Options

	txMu sync.Mutex
	tx   *activeTx

	closeOnce sync.Once
	closeCh   chan struct{}
}

type activeTx struct {
	wq *workqueue.Queue
	sp storage.MutableStoreProvider
}

// New builds a Core and starts its background event and tidy routines.
func New(store storage.Store, drv driver.Driver, sink pubsub.Sink, opts *structs.Options) *Core {
	if opts == nil {
		opts = structs.DefaultOptions()
	}
	c := &Core{
		store:   store,
		driver:  drv,
		sink:    sink,
		opts:    opts,
		closeCh: make(chan struct{}),
	}

	if opts.EventRoutines > 0 {
		c.startEventRoutines()
	}
	if opts.TidyRoutines > 0 {
		c.startTidyRoutines()
	}
	return c
}

// Close stops background routines. The underlying store is left open;
// callers that opened it are responsible for closing it.
func (c *Core) Close() error {
	c.closeOnce.Do(func() { close(c.closeCh) })
	return nil
}

func (c *Core) loadAttributes(host string) ([]structs.Attribute, error) {
	c.txMu.Lock()
	tx := c.tx
	c.txMu.Unlock()
	if tx != nil {
		return tx.sp.Attributes().FetchAttributes(host)
	}

	var out []structs.Attribute
	err := c.store.DoInReadTransaction(func(sp storage.StoreProvider) error {
		a, err := sp.Attributes().FetchAttributes(host)
		out = a
		return err
	})
	return out, err
}

// MatchesConstraints reports whether cfg may be placed on host, per the
// attribute/limit constraint matcher (spec.md §4.6). The resource-offer
// evaluation loop that decides which offered host to try is an external
// collaborator (see spec.md §1 Non-goals); this is the one predicate of
// it this package owns, called once per candidate host before the
// external loop commits to an offer and calls AssignTask.
//
// A fresh Matcher is built per call rather than held on Core, so its
// attribute cache lives for the evaluation of one candidate host (the
// host itself and the hosts of the job's active tasks) and never goes
// stale against attribute changes an external inventory process makes
// between calls.
func (c *Core) MatchesConstraints(cfg *structs.TaskConfig, host string) (bool, error) {
	m := filter.NewMatcher(c.loadAttributes, c.activeTasksForJob)
	return m.Matches(cfg, host)
}

func (c *Core) activeTasksForJob(key structs.JobKey) ([]*structs.ScheduledTask, error) {
	return c.fetchTasksInternal(&structs.Query{
		Role:        key.Role,
		Environment: key.Environment,
		JobName:     key.Name,
		Statuses:    activeStatusList,
	})
}

var activeStatusList = []structs.ScheduleStatus{
	structs.PENDING, structs.ASSIGNED, structs.STARTING, structs.RUNNING,
	structs.UPDATING, structs.ROLLBACK, structs.KILLING, structs.PREEMPTING, structs.RESTARTING,
}

// writeTransaction runs fn inside a write transaction, creating a fresh
// transaction-scoped work queue for the outermost call and reusing the
// enclosing one for any nested call — Core.txMu being held for the
// whole duration is what lets us detect nesting without re-entering the
// store, since the scheduler never runs more than one write transaction
// concurrently (see the concurrency model this implements).
func (c *Core) writeTransaction(fn func(wq *workqueue.Queue, sp storage.MutableStoreProvider) error) error {
	c.txMu.Lock()
	if c.tx != nil {
		wq, sp := c.tx.wq, c.tx.sp
		c.txMu.Unlock()
		return c.guardInvariants(func() error { return fn(wq, sp) })
	}
	c.txMu.Unlock()

	var deferred []func()
	err := c.store.DoInWriteTransaction(func(sp storage.MutableStoreProvider) error {
		wq := workqueue.New()

		c.txMu.Lock()
		c.tx = &activeTx{wq: wq, sp: sp}
		c.txMu.Unlock()
		defer func() {
			c.txMu.Lock()
			c.tx = nil
			c.txMu.Unlock()
		}()

		if err := c.guardInvariants(func() error { return fn(wq, sp) }); err != nil {
			return err
		}
		cbs, err := c.drainWorkQueue(wq, sp)
		deferred = cbs
		return err
	})
	if err != nil {
		return err
	}
	for _, cb := range deferred {
		cb()
	}
	return nil
}

// guardInvariants recovers a panic raised by an internal invariant
// breach (e.g. assignTask seeing more than one task match a taskId) and
// converts it into a fatal log plus process exit rather than letting it
// unwind through the store's transaction machinery — per spec.md §7,
// an IllegalStateException here means the process should not continue.
func (c *Core) guardInvariants(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Fatalf("[core] internal invariant breach, exiting: %v", r)
		}
	}()
	return fn()
}

// drainWorkQueue applies every queued entry against sp (still inside the
// SQL transaction) and returns the post-commit side effects (driver
// calls, pub/sub publishes) the caller must run once the transaction has
// actually committed. Processing an entry may enqueue further entries
// (e.g. RESCHEDULE enqueuing an UPDATE_STATE for the replacement); we
// loop until the queue is dry.
func (c *Core) drainWorkQueue(wq *workqueue.Queue, sp storage.MutableStoreProvider) ([]func(), error) {
	var postCommit []func()

	for wq.Len() > 0 {
		for _, entry := range wq.Drain() {
			cbs, err := c.applyWork(entry, wq, sp)
			if err != nil {
				return nil, err
			}
			postCommit = append(postCommit, cbs...)
		}
	}
	return postCommit, nil
}

func (c *Core) applyWork(entry workqueue.Entry, wq *workqueue.Queue, sp storage.MutableStoreProvider) ([]func(), error) {
	switch entry.Command {
	case structs.UPDATE_STATE, structs.INCREMENT_FAILURES:
		tasks, err := sp.Tasks().MutateTasks(&structs.Query{TaskIds: []string{entry.TaskId}}, func(t *structs.ScheduledTask) {
			if entry.Mutation != nil {
				entry.Mutation(t)
			}
		})
		if err != nil {
			return nil, err
		}
		if entry.Command == structs.UPDATE_STATE && len(tasks) == 1 {
			t := tasks[0]
			prev := t.PreviousStatus()
			return []func(){func() { c.publish(pubsub.TaskStateChange{Task: t, PreviousStatus: prev}) }}, nil
		}
		return nil, nil

	case structs.KILL:
		taskId := entry.TaskId
		return []func(){func() {
			if err := c.driver.KillTask(taskId); err != nil {
				log.Println("[core] kill", taskId, err)
			}
		}}, nil

	case structs.RESCHEDULE:
		return c.rescheduleTerminated(entry.TaskId, wq, sp)

	case structs.UPDATE:
		return c.rescheduleForUpdate(entry.TaskId, structs.GetNewConfig, wq, sp)

	case structs.ROLLBACK_WORK:
		return c.rescheduleForUpdate(entry.TaskId, structs.GetOriginalConfig, wq, sp)

	case structs.DELETE:
		if err := sp.Tasks().DeleteTasks([]string{entry.TaskId}); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return nil, fmt.Errorf("core: unknown work command %q", entry.Command)
}

func (c *Core) publish(evt pubsub.Event) {
	if c.sink == nil {
		return
	}
	if err := c.sink.Publish(evt); err != nil {
		log.Println("[core] publish", err)
	}
}

// newMachine reconstructs a statemachine.TaskStateMachine for task,
// wired to wq and updateCheck.
func (c *Core) newMachine(task *structs.ScheduledTask, taskId, role, job string, initial structs.ScheduleStatus, updateCheck func() bool, wq *workqueue.Queue) *statemachine.TaskStateMachine {
	if updateCheck == nil {
		updateCheck = func() bool { return false }
	}
	return statemachine.New(taskId, role, job, task, updateCheck, wq, statemachine.RealClock{}, initial)
}

// fetchTasksInternal is fetchTasks without opening a new read
// transaction when already inside one (used by the filter matcher,
// which may be invoked from within a write transaction).
func (c *Core) fetchTasksInternal(q *structs.Query) ([]*structs.ScheduledTask, error) {
	q.Sanitize()

	c.txMu.Lock()
	tx := c.tx
	c.txMu.Unlock()
	if tx != nil {
		return tx.sp.Tasks().FetchTasks(q)
	}

	var out []*structs.ScheduledTask
	err := c.store.DoInReadTransaction(func(sp storage.StoreProvider) error {
		tasks, err := sp.Tasks().FetchTasks(q)
		out = tasks
		return err
	})
	return out, err
}

func killBackoff(initial, max time.Duration, attempt int) time.Duration {
	d := initial
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	return d
}
