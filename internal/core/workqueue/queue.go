// Package workqueue implements the deferred side-effect queue a write
// transaction drains at commit. It is transaction-scoped: a Queue is
// created fresh for each outermost write transaction and discarded once
// drained; its contents never outlive the transaction that produced them.
package workqueue

import (
	"github.com/voidshard/igor/pkg/structs"
)

// Entry is a single deferred work item emitted by a task state machine.
type Entry struct {
	Command structs.WorkCommand

	// TaskId identifies the task the command applies to.
	TaskId string

	// Mutation, if non-nil, is applied to the task's stored record when the
	// entry is drained (for UPDATE_STATE it carries the status change and
	// the task-event append themselves).
	Mutation func(*structs.ScheduledTask)
}

// Queue is a priority queue whose only ordering guarantee is that DELETE
// entries sort strictly after every non-DELETE entry. Within either
// partition, order is unspecified: each entry targets a distinct task or
// an idempotent mutation, so FIFO isn't required.
type Queue struct {
	work    []Entry
	deletes []Entry
}

// New returns an empty, transaction-scoped work queue.
func New() *Queue {
	return &Queue{}
}

// AddWork implements statemachine.WorkSink.
func (q *Queue) AddWork(cmd structs.WorkCommand, taskId string, mutation func(*structs.ScheduledTask)) {
	e := Entry{Command: cmd, TaskId: taskId, Mutation: mutation}
	if cmd == structs.DELETE {
		q.deletes = append(q.deletes, e)
		return
	}
	q.work = append(q.work, e)
}

// Drain removes and returns every entry currently queued, non-DELETE
// entries first. The queue is empty once Drain returns; entries added by
// processing earlier entries (e.g. a RESCHEDULE enqueuing further
// UPDATE_STATE work) are not included — callers that expect follow-up
// work to appear must re-check Len()/Drain() in a loop until it reports
// empty.
func (q *Queue) Drain() []Entry {
	out := make([]Entry, 0, len(q.work)+len(q.deletes))
	out = append(out, q.work...)
	out = append(out, q.deletes...)
	q.work = nil
	q.deletes = nil
	return out
}

// Len reports how many entries are currently queued.
func (q *Queue) Len() int {
	return len(q.work) + len(q.deletes)
}
