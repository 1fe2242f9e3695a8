// Package changes defines the change-notification contract internal/core
// consumes. It's a separate package (rather than living in pkg/storage)
// so a storage backend and a mock storage backend can both depend on it
// without importing each other.
package changes

import (
	"github.com/voidshard/igor/pkg/structs"
)

// Kind tags what a Change carries in Old/New.
type Kind string

const (
	KindTask   Kind = "TASK"
	KindUpdate Kind = "UPDATE"
)

// Change is a single committed mutation. Old is nil for an insert, New is
// nil for a delete.
type Change struct {
	Kind Kind
	Old  *structs.ScheduledTask
	New  *structs.ScheduledTask
}

// Stream yields committed changes in commit order. Next blocks until a
// change is available, the stream is closed, or the store connection
// fails.
type Stream interface {
	Next() (*Change, error)
	Close() error
}
