package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateTaskId_IllegalCharactersReplaced(t *testing.T) {
	id := generateTaskId("r.oot", "my.job", 2)
	assert.False(t, strings.Contains(id, "."), "illegal characters must be replaced")
	assert.Contains(t, id, "-r-oot-")
	assert.Contains(t, id, "-my-job-")
}

func TestGenerateTaskId_Unique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		id := generateTaskId("r", "j", 0)
		assert.False(t, seen[id], "task id must be unique across repeated calls")
		seen[id] = true
	}
}

func TestGenerateTaskId_StableShapeForLegalInput(t *testing.T) {
	id := generateTaskId("role", "job", 7)
	parts := strings.Split(id, "-")
	// <epochMillis>-role-job-7-<uuid with 4 dashes> => at least 9 segments.
	assert.GreaterOrEqual(t, len(parts), 9)
	assert.Equal(t, "role", parts[1])
	assert.Equal(t, "job", parts[2])
	assert.Equal(t, "7", parts[3])
}
