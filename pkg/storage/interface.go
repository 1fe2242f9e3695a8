// Package storage defines the transactional contract the state manager
// and update coordinator run against. Reads and writes both happen inside
// a transaction. Store implementations do not compose nested calls;
// internal/core composes nested write transactions itself by reusing the
// outermost call's provider instead of calling the store again.
//
// There is deliberately no QuotaStore here: quota accounting depends on
// resource-usage bookkeeping this scheduler doesn't implement (see
// DESIGN.md), so the interface carries no dead surface for it.
package storage

import (
	"github.com/voidshard/igor/pkg/storage/changes"
	"github.com/voidshard/igor/pkg/structs"
)

// StoreProvider exposes the store handles visible inside a transaction.
// The same interface is used for read and write transactions: Go has no
// cheap way to forbid mutation at the type level without duplicating
// every accessor, and every implementation here already runs mutations
// through a single-writer serialized path (see internal/core), so the
// read/write split the original scheduler enforced at compile time is
// enforced here at the call-site (doInReadTransaction never reaches a
// code path that calls a mutating method) instead.
type StoreProvider interface {
	Tasks() TaskStore
	Updates() UpdateStore
	Attributes() AttributeStore
	Scheduler() SchedulerStore
}

// MutableStoreProvider is StoreProvider as seen from inside a write
// transaction. It is the same type; the alias documents intent at call
// sites.
type MutableStoreProvider = StoreProvider

// Store is the top-level handle a process opens once at startup.
type Store interface {
	// DoInReadTransaction runs fn against a consistent snapshot. Each
	// call opens its own snapshot.
	DoInReadTransaction(fn func(StoreProvider) error) error

	// DoInWriteTransaction runs fn against the live store and commits
	// when fn returns nil. Each call is its own transaction; nesting is
	// composed by the caller (see internal/core), not by the store.
	DoInWriteTransaction(fn func(MutableStoreProvider) error) error

	// Changes returns a stream of change notifications (task mutations
	// committed by any process sharing this store), used by internal/core
	// to republish them as pub/sub events without polling.
	Changes() (changes.Stream, error)

	// Close releases the store's underlying connections.
	Close() error
}

// TaskStore is the task-table contract. SaveTasks and DeleteTasks are
// idempotent; MutateTasks is the only sanctioned way to change a task's
// status or fields, and always runs its mutator on a fresh deep copy so
// the caller may retain the original for comparison or a pub/sub event.
type TaskStore interface {
	SaveTasks(tasks []*structs.ScheduledTask) error
	FetchTasks(q *structs.Query) ([]*structs.ScheduledTask, error)
	FetchTaskIds(q *structs.Query) ([]string, error)
	MutateTasks(q *structs.Query, fn func(*structs.ScheduledTask)) ([]*structs.ScheduledTask, error)
	DeleteTasks(ids []string) error
}

// UpdateStore is the per-job update-configuration contract: the shard-by-
// shard old/new TaskConfig pairs a rolling update is working through.
type UpdateStore interface {
	FetchJobUpdateConfig(key structs.JobKey) (*structs.JobUpdateConfiguration, error)
	FetchUpdateConfigs(role string) ([]*structs.JobUpdateConfiguration, error)
	FetchUpdatingRoles() ([]string, error)
	SaveJobUpdateConfig(cfg *structs.JobUpdateConfiguration) error
	RemoveShardUpdateConfigs(key structs.JobKey, shardIds []int) error
}

// AttributeStore records the host attributes the constraint matcher in
// internal/filter reads. Attributes are set by an external inventory
// process (out of scope here); the store only persists what it's told.
type AttributeStore interface {
	FetchAttributes(host string) ([]structs.Attribute, error)
	SaveAttributes(host string, attrs []structs.Attribute) error
}

// SchedulerStore holds the small amount of singleton state a scheduler
// process itself needs to persist across restarts: the framework id it
// registered with the cluster driver under.
type SchedulerStore interface {
	FetchFrameworkId() (string, error)
	SaveFrameworkId(id string) error
}
