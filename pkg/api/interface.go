// Package api declares the surface a transport (pkg/api/http, a future
// gRPC/thrift server, or an in-process caller) drives the core state
// manager and update coordinator through. The thrift-style RPC surface
// itself, session auth, and admin capability checks are external
// collaborators per spec.md's Non-goals; this interface is the thin seam
// between them and internal/core.Core, which satisfies it directly.
package api

import (
	"context"

	"github.com/voidshard/igor/pkg/structs"
)

// API is implemented by *internal/core.Core.
type API interface {
	InsertTasks(configs []*structs.TaskConfig) ([]string, error)
	AssignTask(taskId, slaveId, host string, grantedPorts []int32) (*structs.AssignedTask, error)
	ChangeState(query *structs.Query, target structs.ScheduleStatus, auditMsg string) (int, error)
	FetchTasks(query *structs.Query) ([]*structs.ScheduledTask, error)
	KillTasks(ctx context.Context, query *structs.Query, identity string) error

	RegisterUpdate(key structs.JobKey, newConfigs map[int]*structs.TaskConfig) (string, error)
	ModifyShards(identity string, key structs.JobKey, shards []int, token string, updating bool) (map[int]structs.ShardUpdateResult, error)
	FinishUpdate(identity string, key structs.JobKey, token string, result structs.UpdateResult, throwIfMissing bool) (bool, error)

	Close() error
}
