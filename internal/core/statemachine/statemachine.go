// Package statemachine implements the per-task status state machine: the
// single place that decides, given a requested target status, whether
// the transition is legal and what deferred work it emits.
//
// A machine is reconstructed fresh per transaction from the store and
// never persisted; only its emitted work and the task record it mutates
// survive the transaction.
package statemachine

import (
	"log"
	"time"

	"github.com/voidshard/igor/pkg/structs"
)

// Clock abstracts time.Now so tests can control task-event timestamps.
type Clock interface {
	Now() time.Time
}

// RealClock is the Clock used outside of tests.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// WorkSink receives the deferred work a transition emits. It is
// satisfied by *internal/core/workqueue.Queue; the state machine never
// imports that package, to keep this one leaf-level.
type WorkSink interface {
	AddWork(cmd structs.WorkCommand, taskId string, mutation func(*structs.ScheduledTask))
}

// TaskStateMachine drives a single task's status forward.
type TaskStateMachine struct {
	TaskId string
	Role   string
	Job    string

	// Task is the record this machine was built from, or nil if the
	// machine represents a status update for a task id the store has no
	// record of.
	Task *structs.ScheduledTask

	// UpdateCheck reports whether a reschedule decision should prefer
	// UPDATE/ROLLBACK over plain RESCHEDULE. Required; pass a func
	// returning false for non-update contexts.
	UpdateCheck func() bool

	sink  WorkSink
	clock Clock

	status structs.ScheduleStatus
}

// New builds a machine for taskId, currently at initial. task may be nil
// (see TaskStateMachine.Task).
func New(taskId, role, job string, task *structs.ScheduledTask, updateCheck func() bool, sink WorkSink, clock Clock, initial structs.ScheduleStatus) *TaskStateMachine {
	if clock == nil {
		clock = RealClock{}
	}
	return &TaskStateMachine{
		TaskId:      taskId,
		Role:        role,
		Job:         job,
		Task:        task,
		UpdateCheck: updateCheck,
		sink:        sink,
		clock:       clock,
		status:      initial,
	}
}

// Status returns the machine's current in-memory status (not necessarily
// committed until the transaction's UPDATE_STATE work lands).
func (m *TaskStateMachine) Status() structs.ScheduleStatus {
	return m.status
}

// updateState advances the machine to target, returns whether the call
// had any effect (emitted at least one work entry).
func (m *TaskStateMachine) updateState(target structs.ScheduleStatus, auditMsg string, mutation func(*structs.ScheduledTask)) bool {
	if m.Task == nil {
		// unknown task: any status update just asks the driver to stop
		// reporting it.
		m.sink.AddWork(structs.KILL, m.TaskId, nil)
		return true
	}

	current := m.status

	if target == current {
		if auditMsg == "" {
			return false
		}
		m.emitUpdateState(target, auditMsg, mutation)
		return true
	}

	if !m.legal(current, target) {
		log.Println("[statemachine] illegal transition", m.TaskId, current, "->", target)
		return false
	}

	m.status = target
	m.emitUpdateState(target, auditMsg, mutation)

	switch target {
	case structs.KILLING, structs.PREEMPTING:
		m.sink.AddWork(structs.KILL, m.TaskId, nil)
	case structs.UPDATING, structs.ROLLBACK:
		m.sink.AddWork(structs.KILL, m.TaskId, nil)
	case structs.FAILED, structs.FINISHED, structs.KILLED, structs.LOST:
		m.emitTerminal(target, current)
	}

	return true
}

// UpdateState is the public entry point; auditMsg and mutation are both
// optional.
func (m *TaskStateMachine) UpdateState(target structs.ScheduleStatus, auditMsg string, mutation func(*structs.ScheduledTask)) bool {
	return m.updateState(target, auditMsg, mutation)
}

func (m *TaskStateMachine) emitUpdateState(target structs.ScheduleStatus, auditMsg string, mutation func(*structs.ScheduledTask)) {
	now := m.clock.Now().UnixMilli()
	m.sink.AddWork(structs.UPDATE_STATE, m.TaskId, func(t *structs.ScheduledTask) {
		if mutation != nil {
			mutation(t)
		}
		t.Status = target
		t.TaskEvents = append(t.TaskEvents, structs.TaskEvent{
			Timestamp: now,
			Status:    target,
			Message:   auditMsg,
		})
	})
}

// emitTerminal handles the reschedule-on-terminal and
// update/rollback-on-terminal-after-KILLING logic.
func (m *TaskStateMachine) emitTerminal(target, previous structs.ScheduleStatus) {
	if target == structs.FAILED {
		m.sink.AddWork(structs.INCREMENT_FAILURES, m.TaskId, func(t *structs.ScheduledTask) {
			t.FailureCount++
		})
	}

	// A task driven straight from UPDATING/ROLLBACK to a terminal status
	// (the normal path: modifyShards drives it there, then its KILL work
	// takes effect) deterministically gets the matching replacement work,
	// independent of whether it's a service task.
	switch previous {
	case structs.UPDATING:
		m.sink.AddWork(structs.UPDATE, m.TaskId, nil)
		return
	case structs.ROLLBACK:
		m.sink.AddWork(structs.ROLLBACK_WORK, m.TaskId, nil)
		return
	}

	if !m.shouldReschedule(target) {
		return
	}
	// A task killed the generic way (KILLING, not via modifyShards) that
	// happens to belong to an in-flight update prefers the update's
	// config over perpetuating the old one.
	if previous == structs.KILLING && m.UpdateCheck != nil && m.UpdateCheck() {
		m.sink.AddWork(structs.UPDATE, m.TaskId, nil)
		return
	}
	m.sink.AddWork(structs.RESCHEDULE, m.TaskId, nil)
}

// shouldReschedule decides whether a service task's terminal landing
// warrants a replacement: LOST and user-initiated KILLED always
// reschedule a service task; FAILED reschedules while under the
// configured failure limit; FINISHED never reschedules (the task ran to
// completion as designed).
func (m *TaskStateMachine) shouldReschedule(target structs.ScheduleStatus) bool {
	cfg := m.Task.AssignedTask.TaskConfig
	if !cfg.IsService {
		return false
	}
	switch target {
	case structs.LOST, structs.KILLED:
		return true
	case structs.FAILED:
		if cfg.MaxFailures <= 0 {
			return true
		}
		return m.Task.FailureCount < cfg.MaxFailures
	default:
		return false
	}
}

// legal reports whether current -> target is a defined transition.
func (m *TaskStateMachine) legal(current, target structs.ScheduleStatus) bool {
	if structs.IsTerminal(current) {
		return false
	}

	switch target {
	case structs.KILLING, structs.PREEMPTING:
		return current != structs.INIT
	case structs.UPDATING, structs.ROLLBACK:
		return structs.IsActive(current) && current != structs.KILLING
	}

	switch current {
	case structs.INIT:
		return target == structs.PENDING
	case structs.PENDING:
		return target == structs.ASSIGNED
	case structs.ASSIGNED:
		return target == structs.STARTING || target == structs.RUNNING
	case structs.STARTING:
		return target == structs.RUNNING
	case structs.RUNNING:
		switch target {
		case structs.FAILED, structs.FINISHED, structs.KILLED, structs.LOST, structs.RESTARTING:
			return true
		}
		return false
	case structs.RESTARTING:
		return target == structs.STARTING || target == structs.RUNNING
	case structs.KILLING:
		return target == structs.KILLED || target == structs.LOST
	case structs.UPDATING, structs.ROLLBACK:
		switch target {
		case structs.FAILED, structs.FINISHED, structs.KILLED, structs.LOST:
			return true
		}
		return false
	case structs.PREEMPTING:
		switch target {
		case structs.KILLED, structs.LOST:
			return true
		}
		return false
	}
	return false
}
