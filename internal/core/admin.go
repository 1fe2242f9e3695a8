package core

import (
	"context"
	"fmt"
	"time"

	"github.com/voidshard/igor/pkg/structs"
)

// KillTasks drives every task matching query to KILLING, then blocks
// under an exponential backoff (bounded by opts.Kill{Initial,Max}Backoff)
// until none of them are active any longer. Cancelling ctx aborts the
// wait; the KILLING transition itself has already been committed and is
// not undone.
func (c *Core) KillTasks(ctx context.Context, query *structs.Query, identity string) error {
	if _, err := c.ChangeState(query, structs.KILLING, fmt.Sprintf("Killed by %s", identity)); err != nil {
		return err
	}

	poll := *query
	poll.Statuses = activeStatusList

	for attempt := 0; ; attempt++ {
		remaining, err := c.FetchTasks(&poll)
		if err != nil {
			return err
		}
		if len(remaining) == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(killBackoff(c.opts.KillInitialBackoff, c.opts.KillMaxBackoff, attempt)):
		}
	}
}
