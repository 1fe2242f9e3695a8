package core

import (
	"log"
	"time"

	"github.com/voidshard/igor/pkg/structs"
)

// startTidyRoutines periodically rechecks running/killing tasks in case
// a framework status event was dropped: a task stuck past
// opts.MaxTaskRuntime is killed, and a task stuck in KILLING for more
// than four times opts.KillMaxBackoff is force-marked LOST so it stops
// blocking its shard's one-active-task invariant.
func (c *Core) startTidyRoutines() {
	work := make(chan []*structs.ScheduledTask)

	go func() {
		defer close(work)
		ticker := time.NewTicker(c.opts.TidyTaskFrequency)
		defer ticker.Stop()
		for {
			select {
			case <-c.closeCh:
				return
			case <-ticker.C:
				c.queueTidyWork(work)
			}
		}
	}()

	for i := int64(0); i < c.opts.TidyRoutines; i++ {
		go func() {
			for tasks := range work {
				c.tidyTasks(tasks)
			}
		}()
	}
}

func (c *Core) queueTidyWork(work chan<- []*structs.ScheduledTask) {
	tasks, err := c.fetchTasksInternal(&structs.Query{
		Statuses: []structs.ScheduleStatus{structs.RUNNING, structs.KILLING},
	})
	if err != nil {
		log.Println("[core] tidy: fetch", err)
		return
	}
	if len(tasks) == 0 {
		return
	}
	select {
	case work <- tasks:
	case <-c.closeCh:
	}
}

func (c *Core) tidyTasks(tasks []*structs.ScheduledTask) {
	now := time.Now()
	for _, t := range tasks {
		last := lastEventTime(t)
		switch t.Status {
		case structs.RUNNING:
			if c.opts.MaxTaskRuntime > 0 && now.Sub(last) > c.opts.MaxTaskRuntime {
				if _, err := c.ChangeState(&structs.Query{TaskIds: []string{t.TaskId}}, structs.KILLING, "exceeded max task runtime"); err != nil {
					log.Println("[core] tidy: kill overrun task", t.TaskId, err)
				}
			}
		case structs.KILLING:
			if now.Sub(last) > c.opts.KillMaxBackoff*4 {
				if _, err := c.ChangeState(&structs.Query{TaskIds: []string{t.TaskId}}, structs.LOST, "presumed lost: stuck in KILLING"); err != nil {
					log.Println("[core] tidy: reap stuck kill", t.TaskId, err)
				}
			}
		}
	}
}

func lastEventTime(t *structs.ScheduledTask) time.Time {
	if len(t.TaskEvents) == 0 {
		return time.Unix(0, 0)
	}
	return time.UnixMilli(t.TaskEvents[len(t.TaskEvents)-1].Timestamp)
}
