// Package driver defines the resource-offer driver contract the state
// manager consumes. The driver itself — the Mesos-style framework
// connection that actually offers hosts and accepts task launches — is
// an external collaborator; this package only covers the one call the
// core needs: killing a task by id.
package driver

// Driver asks the resource-offer framework to kill a running task.
// KillTask is fire-and-forget and must be safe to call more than once
// for the same task id (the framework side is expected to be
// idempotent; a task it no longer knows about is not an error).
type Driver interface {
	KillTask(taskId string) error
}
