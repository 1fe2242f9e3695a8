package structs

// Resource is a single named resource request (cpu, ram, disk, ...).
type Resource struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
}

// ValueConstraint restricts placement to hosts carrying (or, if Negated,
// explicitly not carrying) one of Values for the named attribute.
type ValueConstraint struct {
	Negated bool     `json:"negated"`
	Values  []string `json:"values"`
}

// LimitConstraint caps how many active tasks of the same job may land on
// hosts that share an attribute value with the candidate host.
type LimitConstraint struct {
	Limit int `json:"limit"`
}

// Constraint pairs an attribute name with exactly one of a value or limit
// constraint on it.
type Constraint struct {
	Name  string           `json:"name"`
	Value *ValueConstraint `json:"value,omitempty"`
	Limit *LimitConstraint `json:"limit,omitempty"`
}

// TaskConfig is the declared, immutable-once-created configuration of a
// task: everything the scheduler needs in order to place it, before it is
// assigned to a host.
type TaskConfig struct {
	JobKey `json:",inline"`

	ShardId int `json:"shard_id"`

	// RequestedPorts are named ports the task needs allocated from the
	// offer; AssignedTask.AssignedPorts maps these names to the actual
	// port numbers granted at ASSIGN time, in declaration order.
	RequestedPorts []string `json:"requested_ports,omitempty"`

	Resources []Resource `json:"resources,omitempty"`

	Constraints []Constraint `json:"constraints,omitempty"`

	// IsService marks a task that should be rescheduled automatically on
	// failure/loss/user-kill (a "service" job, as opposed to an ad-hoc or
	// cron job that runs to completion once).
	IsService bool `json:"is_service"`

	// MaxFailures bounds how many times a service task may be
	// rescheduled after FAILED before the scheduler gives up on it. <= 0
	// means unlimited.
	MaxFailures int `json:"max_failures"`
}

// Equal reports whether two configs are equivalent for the purposes of
// rolling-update shard diffing (ignores nothing; this is a full compare
// and deliberately does not special-case pointer identity).
func (t TaskConfig) Equal(o TaskConfig) bool {
	if t.JobKey != o.JobKey || t.ShardId != o.ShardId || t.IsService != o.IsService || t.MaxFailures != o.MaxFailures {
		return false
	}
	if !equalStringSlices(t.RequestedPorts, o.RequestedPorts) {
		return false
	}
	if len(t.Resources) != len(o.Resources) {
		return false
	}
	for i := range t.Resources {
		if t.Resources[i] != o.Resources[i] {
			return false
		}
	}
	if len(t.Constraints) != len(o.Constraints) {
		return false
	}
	for i := range t.Constraints {
		if !t.Constraints[i].equal(o.Constraints[i]) {
			return false
		}
	}
	return true
}

func (c Constraint) equal(o Constraint) bool {
	if c.Name != o.Name {
		return false
	}
	if (c.Value == nil) != (o.Value == nil) {
		return false
	}
	if c.Value != nil && (c.Value.Negated != o.Value.Negated || !equalStringSlices(c.Value.Values, o.Value.Values)) {
		return false
	}
	if (c.Limit == nil) != (o.Limit == nil) {
		return false
	}
	if c.Limit != nil && c.Limit.Limit != o.Limit.Limit {
		return false
	}
	return true
}

func equalStringSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// AssignedTask is a TaskConfig plus the placement information filled in
// when the scheduler assigns it to a host.
type AssignedTask struct {
	TaskConfig `json:",inline"`

	SlaveId   string `json:"slave_id,omitempty"`
	SlaveHost string `json:"slave_host,omitempty"`

	// AssignedPorts maps a requested port name to the port number granted
	// on the slave host.
	AssignedPorts map[string]int32 `json:"assigned_ports,omitempty"`
}

// TaskEvent is a single entry in a task's immutable audit log, appended on
// every effective state transition.
type TaskEvent struct {
	Timestamp int64          `json:"timestamp"`
	Status    ScheduleStatus `json:"status"`
	Message   string         `json:"message,omitempty"`
}

// ScheduledTask is the persistent record for a single task: its identity,
// current status, assignment, and history.
type ScheduledTask struct {
	TaskId string `json:"task_id"`

	Status ScheduleStatus `json:"status"`

	AssignedTask AssignedTask `json:"assigned_task"`

	FailureCount int `json:"failure_count"`

	// AncestorId is the id of the task this one replaced (via reschedule
	// or an update), if any.
	AncestorId string `json:"ancestor_id,omitempty"`

	TaskEvents []TaskEvent `json:"task_events,omitempty"`
}

// DeepCopy returns an owned copy of the task, safe to mutate without
// affecting any record a store may still be holding a reference to.
func (t *ScheduledTask) DeepCopy() *ScheduledTask {
	if t == nil {
		return nil
	}
	out := *t
	out.AssignedTask.RequestedPorts = append([]string(nil), t.AssignedTask.RequestedPorts...)
	out.AssignedTask.Resources = append([]Resource(nil), t.AssignedTask.Resources...)
	out.AssignedTask.Constraints = append([]Constraint(nil), t.AssignedTask.Constraints...)
	if t.AssignedTask.AssignedPorts != nil {
		out.AssignedTask.AssignedPorts = make(map[string]int32, len(t.AssignedTask.AssignedPorts))
		for k, v := range t.AssignedTask.AssignedPorts {
			out.AssignedTask.AssignedPorts[k] = v
		}
	}
	out.TaskEvents = append([]TaskEvent(nil), t.TaskEvents...)
	return &out
}

// PreviousStatus returns the status the task was in immediately before
// its current one, as recorded in the audit log, or "" if there isn't
// one (a single event, or none at all).
func (t *ScheduledTask) PreviousStatus() ScheduleStatus {
	if t == nil || len(t.TaskEvents) < 2 {
		return ""
	}
	return t.TaskEvents[len(t.TaskEvents)-2].Status
}

// JobKeyOf is a convenience accessor for a task's owning job.
func (t *ScheduledTask) JobKeyOf() JobKey {
	return t.AssignedTask.TaskConfig.JobKey
}
