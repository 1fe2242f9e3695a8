package core

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

var taskIdIllegal = regexp.MustCompile(`[^\w-]`)

// generateTaskId builds a chronologically-sortable, globally unique task
// id: <epochMillis>-<role>-<job>-<shardId>-<uuid>, with every character
// outside [A-Za-z0-9_-] replaced by "-". A role like "r.oot" becomes
// "r-oot" — preserved for task-identity backward-compatibility rather
// than "fixed".
func generateTaskId(role, job string, shardId int) string {
	raw := fmt.Sprintf("%d-%s-%s-%d-%s", time.Now().UnixMilli(), role, job, shardId, uuid.New().String())
	return taskIdIllegal.ReplaceAllString(raw, "-")
}
