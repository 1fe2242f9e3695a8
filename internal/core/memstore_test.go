package core

import (
	"fmt"
	"sync"

	"github.com/voidshard/igor/pkg/storage"
	"github.com/voidshard/igor/pkg/storage/changes"
	"github.com/voidshard/igor/pkg/structs"
)

// memStore is an in-memory storage.Store used only by this package's
// tests. Real atomicity matters here (a failed write must leave no
// trace): DoInWriteTransaction runs fn against deep copies of the
// current maps and only swaps them into the store if fn returns nil,
// mirroring what a real transaction's commit/rollback gives us without
// dragging a database into these tests.
type memStore struct {
	mu      sync.Mutex
	tasks   map[string]*structs.ScheduledTask
	updates map[structs.JobKey]*structs.JobUpdateConfiguration
	attrs   map[string][]structs.Attribute
}

func newMemStore() *memStore {
	return &memStore{
		tasks:   map[string]*structs.ScheduledTask{},
		updates: map[structs.JobKey]*structs.JobUpdateConfiguration{},
		attrs:   map[string][]structs.Attribute{},
	}
}

func (m *memStore) Close() error { return nil }

func (m *memStore) Changes() (changes.Stream, error) {
	return nil, fmt.Errorf("memstore: change stream not supported")
}

func (m *memStore) DoInReadTransaction(fn func(storage.StoreProvider) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&memProvider{store: m})
}

func (m *memStore) DoInWriteTransaction(fn func(storage.MutableStoreProvider) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	attrs := make(map[string][]structs.Attribute, len(m.attrs))
	for host, a := range m.attrs {
		attrs[host] = a
	}
	scratch := &memStore{
		tasks:   deepCopyTasks(m.tasks),
		updates: deepCopyUpdates(m.updates),
		attrs:   attrs,
	}
	if err := fn(&memProvider{store: scratch}); err != nil {
		return err
	}
	m.tasks = scratch.tasks
	m.updates = scratch.updates
	m.attrs = scratch.attrs
	return nil
}

func deepCopyTasks(in map[string]*structs.ScheduledTask) map[string]*structs.ScheduledTask {
	out := make(map[string]*structs.ScheduledTask, len(in))
	for k, v := range in {
		out[k] = v.DeepCopy()
	}
	return out
}

func deepCopyUpdates(in map[structs.JobKey]*structs.JobUpdateConfiguration) map[structs.JobKey]*structs.JobUpdateConfiguration {
	out := make(map[structs.JobKey]*structs.JobUpdateConfiguration, len(in))
	for k, v := range in {
		cp := *v
		cp.Configs = make(map[int]*structs.TaskUpdateConfiguration, len(v.Configs))
		for shard, c := range v.Configs {
			cc := *c
			cp.Configs[shard] = &cc
		}
		out[k] = &cp
	}
	return out
}

type memProvider struct {
	store *memStore
}

func (p *memProvider) Tasks() storage.TaskStore           { return &memTaskStore{p.store} }
func (p *memProvider) Updates() storage.UpdateStore       { return &memUpdateStore{p.store} }
func (p *memProvider) Attributes() storage.AttributeStore { return &memAttrStore{p.store} }
func (p *memProvider) Scheduler() storage.SchedulerStore  { return &memSchedulerStore{} }

type memTaskStore struct{ s *memStore }

func (t *memTaskStore) SaveTasks(tasks []*structs.ScheduledTask) error {
	for _, task := range tasks {
		t.s.tasks[task.TaskId] = task.DeepCopy()
	}
	return nil
}

func (t *memTaskStore) FetchTasks(q *structs.Query) ([]*structs.ScheduledTask, error) {
	out := []*structs.ScheduledTask{}
	for _, task := range t.s.tasks {
		if matches(task, q) {
			out = append(out, task.DeepCopy())
		}
	}
	return out, nil
}

func (t *memTaskStore) FetchTaskIds(q *structs.Query) ([]string, error) {
	tasks, err := t.FetchTasks(q)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(tasks))
	for _, task := range tasks {
		ids = append(ids, task.TaskId)
	}
	return ids, nil
}

func (t *memTaskStore) MutateTasks(q *structs.Query, fn func(*structs.ScheduledTask)) ([]*structs.ScheduledTask, error) {
	current, err := t.FetchTasks(q)
	if err != nil {
		return nil, err
	}
	out := make([]*structs.ScheduledTask, 0, len(current))
	for _, task := range current {
		mutated := task.DeepCopy()
		fn(mutated)
		t.s.tasks[mutated.TaskId] = mutated
		out = append(out, mutated)
	}
	return out, nil
}

func (t *memTaskStore) DeleteTasks(ids []string) error {
	for _, id := range ids {
		delete(t.s.tasks, id)
	}
	return nil
}

func matches(t *structs.ScheduledTask, q *structs.Query) bool {
	key := t.JobKeyOf()
	if q.Role != "" && q.Role != key.Role {
		return false
	}
	if q.Environment != "" && q.Environment != key.Environment {
		return false
	}
	if q.JobName != "" && q.JobName != key.Name {
		return false
	}
	if q.SlaveHost != "" && q.SlaveHost != t.AssignedTask.SlaveHost {
		return false
	}
	if len(q.ShardIds) > 0 && !containsInt(q.ShardIds, t.AssignedTask.ShardId) {
		return false
	}
	if len(q.TaskIds) > 0 && !containsStr(q.TaskIds, t.TaskId) {
		return false
	}
	if len(q.Statuses) > 0 && !containsStatus(q.Statuses, t.Status) {
		return false
	}
	return true
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func containsStr(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func containsStatus(xs []structs.ScheduleStatus, v structs.ScheduleStatus) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

type memUpdateStore struct{ s *memStore }

func (u *memUpdateStore) FetchJobUpdateConfig(key structs.JobKey) (*structs.JobUpdateConfiguration, error) {
	cfg, ok := u.s.updates[key]
	if !ok {
		return nil, nil
	}
	return cfg, nil
}

func (u *memUpdateStore) FetchUpdateConfigs(role string) ([]*structs.JobUpdateConfiguration, error) {
	out := []*structs.JobUpdateConfiguration{}
	for k, v := range u.s.updates {
		if k.Role == role {
			out = append(out, v)
		}
	}
	return out, nil
}

func (u *memUpdateStore) FetchUpdatingRoles() ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for k := range u.s.updates {
		if !seen[k.Role] {
			seen[k.Role] = true
			out = append(out, k.Role)
		}
	}
	return out, nil
}

func (u *memUpdateStore) SaveJobUpdateConfig(cfg *structs.JobUpdateConfiguration) error {
	u.s.updates[cfg.JobKey] = cfg
	return nil
}

func (u *memUpdateStore) RemoveShardUpdateConfigs(key structs.JobKey, shardIds []int) error {
	cfg, ok := u.s.updates[key]
	if !ok {
		return nil
	}
	if len(shardIds) == 0 {
		delete(u.s.updates, key)
		return nil
	}
	for _, id := range shardIds {
		delete(cfg.Configs, id)
	}
	if len(cfg.Configs) == 0 {
		delete(u.s.updates, key)
	}
	return nil
}

type memAttrStore struct{ s *memStore }

func (a *memAttrStore) FetchAttributes(host string) ([]structs.Attribute, error) {
	return a.s.attrs[host], nil
}

func (a *memAttrStore) SaveAttributes(host string, attrs []structs.Attribute) error {
	a.s.attrs[host] = attrs
	return nil
}

type memSchedulerStore struct{}

func (memSchedulerStore) FetchFrameworkId() (string, error)    { return "", nil }
func (memSchedulerStore) SaveFrameworkId(id string) error { return nil }
