package statemachine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voidshard/igor/pkg/structs"
)

type fakeClock struct{ t time.Time }

func (c fakeClock) Now() time.Time { return c.t }

type recordedWork struct {
	cmd    structs.WorkCommand
	taskId string
	mut    func(*structs.ScheduledTask)
}

type recordingSink struct {
	work []recordedWork
}

func (s *recordingSink) AddWork(cmd structs.WorkCommand, taskId string, mutation func(*structs.ScheduledTask)) {
	s.work = append(s.work, recordedWork{cmd: cmd, taskId: taskId, mut: mutation})
}

func (s *recordingSink) commands() []structs.WorkCommand {
	out := make([]structs.WorkCommand, len(s.work))
	for i, w := range s.work {
		out[i] = w.cmd
	}
	return out
}

func serviceTask(status structs.ScheduleStatus, failures, maxFailures int) *structs.ScheduledTask {
	return &structs.ScheduledTask{
		TaskId: "t1",
		Status: status,
		AssignedTask: structs.AssignedTask{
			TaskConfig: structs.TaskConfig{
				JobKey:      structs.JobKey{Role: "r", Environment: "prod", Name: "j"},
				IsService:   true,
				MaxFailures: maxFailures,
			},
		},
		FailureCount: failures,
		TaskEvents:   []structs.TaskEvent{{Timestamp: 1, Status: status}},
	}
}

func noUpdate() bool { return false }

func TestUpdateState_UnknownTaskOnlyKills(t *testing.T) {
	sink := &recordingSink{}
	m := New("t1", "r", "j", nil, noUpdate, sink, fakeClock{}, structs.UNKNOWN)

	ok := m.UpdateState(structs.KILLED, "", nil)
	assert.True(t, ok)
	require.Len(t, sink.work, 1)
	assert.Equal(t, structs.KILL, sink.work[0].cmd)
}

func TestUpdateState_SameStatusNoMessageIsNoop(t *testing.T) {
	task := serviceTask(structs.RUNNING, 0, 3)
	sink := &recordingSink{}
	m := New("t1", "r", "j", task, noUpdate, sink, fakeClock{}, structs.RUNNING)

	ok := m.UpdateState(structs.RUNNING, "", nil)
	assert.False(t, ok)
	assert.Empty(t, sink.work)
}

func TestUpdateState_SameStatusWithMessageRecordsEvent(t *testing.T) {
	task := serviceTask(structs.RUNNING, 0, 3)
	sink := &recordingSink{}
	m := New("t1", "r", "j", task, noUpdate, sink, fakeClock{}, structs.RUNNING)

	ok := m.UpdateState(structs.RUNNING, "still running", nil)
	assert.True(t, ok)
	require.Len(t, sink.work, 1)
	assert.Equal(t, structs.UPDATE_STATE, sink.work[0].cmd)

	mutated := task.DeepCopy()
	sink.work[0].mut(mutated)
	assert.Equal(t, "still running", mutated.TaskEvents[len(mutated.TaskEvents)-1].Message)
}

func TestUpdateState_IllegalTransitionIsRejected(t *testing.T) {
	task := serviceTask(structs.FINISHED, 0, 3)
	sink := &recordingSink{}
	m := New("t1", "r", "j", task, noUpdate, sink, fakeClock{}, structs.FINISHED)

	ok := m.UpdateState(structs.RUNNING, "", nil)
	assert.False(t, ok, "FINISHED is terminal, no transition out of it is legal")
	assert.Empty(t, sink.work)
}

func TestUpdateState_PendingToAssigned(t *testing.T) {
	task := serviceTask(structs.PENDING, 0, 3)
	sink := &recordingSink{}
	m := New("t1", "r", "j", task, noUpdate, sink, fakeClock{}, structs.PENDING)

	ok := m.UpdateState(structs.ASSIGNED, "", nil)
	assert.True(t, ok)
	assert.Equal(t, structs.ASSIGNED, m.Status())
	assert.Equal(t, []structs.WorkCommand{structs.UPDATE_STATE}, sink.commands())
}

func TestUpdateState_KillingEmitsKillWork(t *testing.T) {
	task := serviceTask(structs.RUNNING, 0, 3)
	sink := &recordingSink{}
	m := New("t1", "r", "j", task, noUpdate, sink, fakeClock{}, structs.RUNNING)

	ok := m.UpdateState(structs.KILLING, "killed by user", nil)
	assert.True(t, ok)
	assert.Equal(t, []structs.WorkCommand{structs.UPDATE_STATE, structs.KILL}, sink.commands())
}

func TestUpdateState_FailedUnderLimitReschedules(t *testing.T) {
	task := serviceTask(structs.RUNNING, 0, 3)
	sink := &recordingSink{}
	m := New("t1", "r", "j", task, noUpdate, sink, fakeClock{}, structs.RUNNING)

	ok := m.UpdateState(structs.FAILED, "", nil)
	assert.True(t, ok)
	assert.Equal(t, []structs.WorkCommand{structs.UPDATE_STATE, structs.INCREMENT_FAILURES, structs.RESCHEDULE}, sink.commands())
}

func TestUpdateState_FailedAtLimitDoesNotReschedule(t *testing.T) {
	task := serviceTask(structs.RUNNING, 3, 3)
	sink := &recordingSink{}
	m := New("t1", "r", "j", task, noUpdate, sink, fakeClock{}, structs.RUNNING)

	ok := m.UpdateState(structs.FAILED, "", nil)
	assert.True(t, ok)
	assert.Equal(t, []structs.WorkCommand{structs.UPDATE_STATE, structs.INCREMENT_FAILURES}, sink.commands())
}

func TestUpdateState_FinishedNeverReschedules(t *testing.T) {
	task := serviceTask(structs.RUNNING, 0, 3)
	sink := &recordingSink{}
	m := New("t1", "r", "j", task, noUpdate, sink, fakeClock{}, structs.RUNNING)

	ok := m.UpdateState(structs.FINISHED, "", nil)
	assert.True(t, ok)
	assert.Equal(t, []structs.WorkCommand{structs.UPDATE_STATE}, sink.commands())
}

func TestUpdateState_NonServiceNeverReschedules(t *testing.T) {
	task := serviceTask(structs.RUNNING, 0, 3)
	task.AssignedTask.TaskConfig.IsService = false
	sink := &recordingSink{}
	m := New("t1", "r", "j", task, noUpdate, sink, fakeClock{}, structs.RUNNING)

	ok := m.UpdateState(structs.LOST, "", nil)
	assert.True(t, ok)
	assert.Equal(t, []structs.WorkCommand{structs.UPDATE_STATE}, sink.commands())
}

func TestUpdateState_UpdatingThenKilledEmitsUpdate(t *testing.T) {
	task := serviceTask(structs.UPDATING, 0, 3)
	sink := &recordingSink{}
	m := New("t1", "r", "j", task, noUpdate, sink, fakeClock{}, structs.UPDATING)

	ok := m.UpdateState(structs.KILLED, "", nil)
	assert.True(t, ok)
	assert.Equal(t, []structs.WorkCommand{structs.UPDATE_STATE, structs.UPDATE}, sink.commands())
}

func TestUpdateState_RollbackThenLostEmitsRollback(t *testing.T) {
	task := serviceTask(structs.ROLLBACK, 0, 3)
	sink := &recordingSink{}
	m := New("t1", "r", "j", task, noUpdate, sink, fakeClock{}, structs.ROLLBACK)

	ok := m.UpdateState(structs.LOST, "", nil)
	assert.True(t, ok)
	assert.Equal(t, []structs.WorkCommand{structs.UPDATE_STATE, structs.ROLLBACK_WORK}, sink.commands())
}

func TestUpdateState_KillingPrefersUpdateWhenInFlight(t *testing.T) {
	task := serviceTask(structs.KILLING, 0, 3)
	sink := &recordingSink{}
	updateCheck := func() bool { return true }
	m := New("t1", "r", "j", task, updateCheck, sink, fakeClock{}, structs.KILLING)

	ok := m.UpdateState(structs.KILLED, "", nil)
	assert.True(t, ok)
	assert.Equal(t, []structs.WorkCommand{structs.UPDATE_STATE, structs.UPDATE}, sink.commands())
}

func TestUpdateState_KillingWithoutUpdateReschedules(t *testing.T) {
	task := serviceTask(structs.KILLING, 0, 3)
	sink := &recordingSink{}
	m := New("t1", "r", "j", task, noUpdate, sink, fakeClock{}, structs.KILLING)

	ok := m.UpdateState(structs.KILLED, "", nil)
	assert.True(t, ok)
	assert.Equal(t, []structs.WorkCommand{structs.UPDATE_STATE, structs.RESCHEDULE}, sink.commands())
}

func TestLegal_CannotEnterUpdatingFromKilling(t *testing.T) {
	task := serviceTask(structs.KILLING, 0, 3)
	sink := &recordingSink{}
	m := New("t1", "r", "j", task, noUpdate, sink, fakeClock{}, structs.KILLING)

	ok := m.UpdateState(structs.UPDATING, "", nil)
	assert.False(t, ok, "a task already being killed must not be re-driven into an update")
}
