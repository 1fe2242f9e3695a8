package structs

const (
	queryLimitDefault = 1000
	queryLimitMax     = 10000
)

// Query is a structured predicate the store translates into an index
// lookup. Zero-valued fields are not filtered on.
type Query struct {
	Role        string   `json:"role,omitempty"`
	Environment string   `json:"environment,omitempty"`
	JobName     string   `json:"job_name,omitempty"`
	ShardIds    []int    `json:"shard_ids,omitempty"`
	Statuses    []ScheduleStatus `json:"statuses,omitempty"`
	TaskIds     []string `json:"task_ids,omitempty"`
	SlaveHost   string   `json:"slave_host,omitempty"`

	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// Sanitize clamps limit/offset to sane bounds and nils out empty slices,
// the way incoming API requests are normalised before hitting the store.
func (q *Query) Sanitize() {
	if q.Limit <= 0 {
		q.Limit = queryLimitDefault
	}
	if q.Limit > queryLimitMax {
		q.Limit = queryLimitMax
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	if len(q.ShardIds) == 0 {
		q.ShardIds = nil
	}
	if len(q.Statuses) == 0 {
		q.Statuses = nil
	}
	if len(q.TaskIds) == 0 {
		q.TaskIds = nil
	}
}

// JobKey builds the JobKey this query is scoped to, if fully specified.
func (q *Query) JobKey() JobKey {
	return JobKey{Role: q.Role, Environment: q.Environment, Name: q.JobName}
}
